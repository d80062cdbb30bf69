// internal/models/models.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type PromptStatus string

const (
	PromptActive  PromptStatus = "active"
	PromptClosed  PromptStatus = "closed"
	PromptExpired PromptStatus = "expired"
)

type Prompt struct {
	ID                 uint         `gorm:"primaryKey"`
	Text               string       `gorm:"type:text;not null"`
	Category           string       `gorm:"not null;index"`
	ExternalMessageRef string       // first rendered artifact, empty until posted
	Status             PromptStatus `gorm:"not null;default:active;index"`
	CreatedAt          time.Time    `gorm:"index"`
}

// Outcome tags a candidate as a real answer or a failed completion.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

type Response struct {
	ID            uint   `gorm:"primaryKey"`
	PromptID      uint   `gorm:"not null;index"`
	Text          string `gorm:"type:text"`
	ModelName     string `gorm:"not null"`
	Temperature   float32
	Outcome       Outcome `gorm:"not null;default:ok"`
	FailureReason string  `gorm:"type:text"`
	CreatedAt     time.Time
}

type FeedbackKind string

const (
	FeedbackLike    FeedbackKind = "like"
	FeedbackDislike FeedbackKind = "dislike"
	FeedbackComment FeedbackKind = "comment"
)

// FeedbackEvent rows are append-only. Repeated reactions from the same user
// are stored as separate rows.
type FeedbackEvent struct {
	ID             uint         `gorm:"primaryKey"`
	PromptID       uint         `gorm:"not null;index"`
	ResponseID     uint         `gorm:"not null;index"`
	ExternalUserID string       `gorm:"not null"`
	UserName       string       `gorm:"not null"`
	Kind           FeedbackKind `gorm:"not null"`
	Value          string       `gorm:"type:text"`
	CreatedAt      time.Time
}

type TrainingPair struct {
	ID            uint                        `gorm:"primaryKey"`
	PromptID      uint                        `gorm:"not null;uniqueIndex"`
	PromptText    string                      `gorm:"type:text;not null"`
	ChosenText    string                      `gorm:"type:text;not null"`
	RejectedTexts datatypes.JSONSlice[string] `gorm:"not null"`
	Score         int
	CreatedAt     time.Time `gorm:"index"`
}

// RankedResponse is one row of the ranking query. Score is derived at query
// time and never stored.
type RankedResponse struct {
	ResponseID  uint
	Text        string
	ModelName   string
	Temperature float32
	Likes       int
	Dislikes    int
	Comments    int
	Score       int
}

type CategoryCount struct {
	Category string
	Count    int64
}

type Stats struct {
	Prompts       int64
	Responses     int64
	Feedback      int64
	TrainingPairs int64
	Categories    []CategoryCount
}
