package model

// StructuredAnalysis 文本生成服务返回的四段式分析
type StructuredAnalysis struct {
	Summary         string `json:"summary"`
	Recommendations string `json:"recommendations"`
	FlaggedIssues   string `json:"flaggedIssues"`
	Encouragement   string `json:"encouragement"`
}

// AnalysisRecord 每个 (subject, challenge, period) 至多一条，重新生成时原地覆盖
// swagger:model AnalysisRecord
type AnalysisRecord struct {
	UUIDBase
	SubjectID       string `gorm:"type:varchar(36);not null;uniqueIndex:idx_analysis_natural_key,priority:1" json:"userId"`
	ChallengeID     string `gorm:"type:varchar(36);not null;uniqueIndex:idx_analysis_natural_key,priority:2" json:"challengeId"`
	PeriodNumber    int    `gorm:"not null;uniqueIndex:idx_analysis_natural_key,priority:3" json:"weekNumber"`
	Summary         string `gorm:"type:text" json:"summary"`
	Recommendations string `gorm:"type:text" json:"recommendations"`
	FlaggedIssues   string `gorm:"type:text" json:"flaggedIssues"`
	Encouragement   string `gorm:"type:text" json:"encouragement"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

func (a *AnalysisRecord) Structured() StructuredAnalysis {
	return StructuredAnalysis{
		Summary:         a.Summary,
		Recommendations: a.Recommendations,
		FlaggedIssues:   a.FlaggedIssues,
		Encouragement:   a.Encouragement,
	}
}

func (a *AnalysisRecord) Apply(s StructuredAnalysis) {
	a.Summary = s.Summary
	a.Recommendations = s.Recommendations
	a.FlaggedIssues = s.FlaggedIssues
	a.Encouragement = s.Encouragement
}
