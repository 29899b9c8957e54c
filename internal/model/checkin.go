package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Measurements 身体围度（单位 cm），以 JSON 文本存储
type Measurements map[string]float64

func (m Measurements) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Measurements) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported measurements type %T", value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

// CheckInMetrics 一次周打卡上报的可选指标，nil 表示未填写
type CheckInMetrics struct {
	Weight       *float64     `gorm:"comment:体重(kg)" json:"weight,omitempty"`
	Measurements Measurements `gorm:"type:text" json:"measurements,omitempty"`
	Mood         *string      `gorm:"size:100" json:"mood,omitempty"`
	SleepHours   *float64     `json:"sleepHours,omitempty"`
	EnergyLevel  *int         `json:"energyLevel,omitempty"`
	Notes        *string      `gorm:"type:text" json:"notes,omitempty"`
}

// CheckIn 学员的周打卡记录，创建后不再修改
// 同一 (subject, challenge, period) 允许重复提交，每次都会新增一行
// swagger:model CheckIn
type CheckIn struct {
	ID           string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SubjectID    string `gorm:"type:varchar(36);not null;index:idx_checkin_natural_key,priority:1" json:"userId"`
	ChallengeID  string `gorm:"type:varchar(36);not null;index:idx_checkin_natural_key,priority:2" json:"challengeId"`
	PeriodNumber int    `gorm:"not null;index:idx_checkin_natural_key,priority:3" json:"weekNumber"`
	CheckInMetrics
	CreatedAt time.Time `json:"createdAt"`
}

func (CheckIn) TableName() string {
	return "check_ins"
}

func (c *CheckIn) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = GenerateUUID()
	}
	return nil
}
