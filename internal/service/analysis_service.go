package service

import (
	"context"
	"fitcoach_backend/internal/config"
	"fitcoach_backend/internal/model"
	"fitcoach_backend/internal/repository"
	"fitcoach_backend/internal/util"
	"fitcoach_backend/pkg/logger"
	"fitcoach_backend/pkg/monitoring"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const analysisSystemInstruction = "You are an expert fitness coach analyzing client progress data. Provide detailed, professional, and encouraging feedback."

const defaultHistoryWindow = 4

// AnalysisContextReader 生成分析时需要读取的数据，提交流程中传入事务内的仓库
type AnalysisContextReader interface {
	FindPrevious(ctx context.Context, subjectID, challengeID string, period, limit int) ([]model.CheckIn, error)
	FindSubject(ctx context.Context, id string) (*model.User, error)
	FindChallenge(ctx context.Context, id string) (*model.Challenge, error)
}

// CheckInContext 触发分析的当前打卡数据
type CheckInContext struct {
	SubjectID    string
	ChallengeID  string
	PeriodNumber int
	model.CheckInMetrics
}

func ContextFromCheckIn(c *model.CheckIn) CheckInContext {
	return CheckInContext{
		SubjectID:      c.SubjectID,
		ChallengeID:    c.ChallengeID,
		PeriodNumber:   c.PeriodNumber,
		CheckInMetrics: c.CheckInMetrics,
	}
}

type AnalysisService struct {
	generator     TextGenerator
	historyWindow int

	mu   sync.RWMutex
	opts GenerateOptions
}

func NewAnalysisService(generator TextGenerator, cfg config.AIConfig, historyWindow int) *AnalysisService {
	if historyWindow <= 0 {
		historyWindow = defaultHistoryWindow
	}
	s := &AnalysisService{generator: generator, historyWindow: historyWindow}
	s.UpdateOptions(cfg)
	return s
}

// UpdateOptions 配置热更新时替换模型参数
func (s *AnalysisService) UpdateOptions(cfg config.AIConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = GenerateOptions{
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		JSONResponse: cfg.JSONMode,
	}
}

func (s *AnalysisService) Options() GenerateOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Analyze 读取历史、渲染提示词、调用生成服务并解析结果，不做持久化
func (s *AnalysisService) Analyze(ctx context.Context, reader AnalysisContextReader, cc CheckInContext) (*model.StructuredAnalysis, error) {
	previous, err := reader.FindPrevious(ctx, cc.SubjectID, cc.ChallengeID, cc.PeriodNumber, s.historyWindow)
	if err != nil {
		return nil, util.NewInternal("Error analyzing check-in data", err)
	}

	subject, err := reader.FindSubject(ctx, cc.SubjectID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, util.NewInternal("Error analyzing check-in data", err)
	}

	challenge, err := reader.FindChallenge(ctx, cc.ChallengeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, util.NewInternal("Error analyzing check-in data", err)
	}

	prompt := RenderPrompt(subject, challenge, cc, previous)

	start := time.Now()
	raw, err := s.generator.Generate(ctx, analysisSystemInstruction, prompt, s.Options())
	monitoring.AnalysisGenerationDuration.Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(raw) == "" {
		err = fmt.Errorf("empty completion")
	}
	if err != nil {
		monitoring.AnalysisGenerations.WithLabelValues("unavailable").Inc()
		logger.Log.Warn("Analysis generation failed",
			zap.String("subjectId", cc.SubjectID),
			zap.String("challengeId", cc.ChallengeID),
			zap.Int("weekNumber", cc.PeriodNumber),
			zap.Error(err))
		return nil, util.NewAppError(util.KindAnalysisUnavailable, "Failed to generate AI analysis", err)
	}
	monitoring.AnalysisGenerations.WithLabelValues("success").Inc()

	analysis := ParseAnalysis(raw)
	return &analysis, nil
}

// RenderPrompt 相同输入总是得到相同文本
func RenderPrompt(subject *model.User, challenge *model.Challenge, cc CheckInContext, previous []model.CheckIn) string {
	var b strings.Builder
	b.WriteString("Analyze the following client check-in data and provide a comprehensive analysis:\n\n")
	fmt.Fprintf(&b, "Client: %s\n", subject.Name)
	fmt.Fprintf(&b, "Challenge: %s\n", challenge.Name)
	fmt.Fprintf(&b, "Week: %d of %d\n\n", cc.PeriodNumber, challenge.DurationWeeks)

	b.WriteString("Current Check-in Data:\n")
	b.WriteString(formatCurrent(cc.CheckInMetrics))
	b.WriteString("\nPrevious Check-ins:\n")
	b.WriteString(formatPrevious(previous, cc.CheckInMetrics))

	b.WriteString(`

Please provide:
1. A summary of progress and changes
2. Specific recommendations for improvement
3. Any potential issues to flag
4. An encouraging message

Format the response in JSON with the following structure:
{
  "summary": "string",
  "recommendations": "string",
  "flaggedIssues": "string",
  "encouragement": "string"
}`)
	return b.String()
}

func sortedKeys(m model.Measurements) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatCurrent(m model.CheckInMetrics) string {
	var b strings.Builder
	if m.Weight != nil {
		fmt.Fprintf(&b, "Weight: %skg\n", util.FormatNumber(*m.Weight))
	}
	if len(m.Measurements) > 0 {
		b.WriteString("Measurements:\n")
		for _, k := range sortedKeys(m.Measurements) {
			fmt.Fprintf(&b, "- %s: %scm\n", k, util.FormatNumber(m.Measurements[k]))
		}
	}
	if m.Mood != nil && *m.Mood != "" {
		fmt.Fprintf(&b, "Mood: %s\n", *m.Mood)
	}
	if m.SleepHours != nil {
		fmt.Fprintf(&b, "Sleep: %s hours\n", util.FormatNumber(*m.SleepHours))
	}
	if m.EnergyLevel != nil {
		fmt.Fprintf(&b, "Energy Level: %d/10\n", *m.EnergyLevel)
	}
	if m.Notes != nil && *m.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", *m.Notes)
	}
	return b.String()
}

// formatPrevious 每个历史周列出体重和围度，当前周有对应值时附上变化量
func formatPrevious(previous []model.CheckIn, current model.CheckInMetrics) string {
	if len(previous) == 0 {
		return "No previous check-ins available"
	}

	blocks := make([]string, 0, len(previous))
	for _, p := range previous {
		var b strings.Builder
		fmt.Fprintf(&b, "Week %d:\n", p.PeriodNumber)
		if p.Weight != nil {
			fmt.Fprintf(&b, "- Weight: %skg", util.FormatNumber(*p.Weight))
			if current.Weight != nil {
				fmt.Fprintf(&b, " (change to current: %skg)", signed(*current.Weight-*p.Weight))
			}
			b.WriteString("\n")
		}
		for _, k := range sortedKeys(p.Measurements) {
			v := p.Measurements[k]
			fmt.Fprintf(&b, "- %s: %scm", k, util.FormatNumber(v))
			if cur, ok := current.Measurements[k]; ok {
				fmt.Fprintf(&b, " (change to current: %scm)", signed(cur-v))
			}
			b.WriteString("\n")
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

func signed(delta float64) string {
	// 浮点相减的尾差按两位小数截掉
	rounded := math.Round(delta*100) / 100
	if rounded > 0 {
		return "+" + util.FormatNumber(rounded)
	}
	if rounded == 0 {
		return "0"
	}
	return util.FormatNumber(rounded)
}

var (
	blankLine   = regexp.MustCompile(`\n\s*\n`)
	fencedBlock = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
)

// ParseAnalysis 优先按 JSON 解析，失败时按空行切成四段，不会返回错误
func ParseAnalysis(raw string) model.StructuredAnalysis {
	text := strings.TrimSpace(raw)
	candidate := text
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}

	if gjson.Valid(candidate) {
		if obj := gjson.Parse(candidate); obj.IsObject() {
			return model.StructuredAnalysis{
				Summary:         fieldText(obj.Get("summary")),
				Recommendations: fieldText(obj.Get("recommendations")),
				FlaggedIssues:   fieldText(obj.Get("flaggedIssues")),
				Encouragement:   fieldText(obj.Get("encouragement")),
			}
		}
	}

	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	sections := blankLine.Split(normalized, -1)
	at := func(i int) string {
		if i < len(sections) {
			return strings.TrimSpace(sections[i])
		}
		return ""
	}
	return model.StructuredAnalysis{
		Summary:         at(0),
		Recommendations: at(1),
		FlaggedIssues:   at(2),
		Encouragement:   at(3),
	}
}

// fieldText 字段可能是字符串、数组或 null
func fieldText(v gjson.Result) string {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return ""
	case v.IsArray():
		items := v.Array()
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, item.String())
		}
		return strings.Join(lines, "\n")
	default:
		return v.String()
	}
}
