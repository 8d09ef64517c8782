package models

import (
	"time"
)

// QuestionStatus represents the lifecycle state of a question.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
)

// Question is a structured request for a missing fact, generated from an
// unresolved placeholder. Answering a question never restarts the pipeline;
// it only updates plan state for the next run.
type Question struct {
	ID          string         `json:"id" validate:"required,uuid4"`
	PlanID      string         `json:"plan_id" validate:"required,uuid4"`
	SectionKey  string         `json:"section_key,omitempty"`
	Text        string         `json:"text" validate:"required"`
	Context     string         `json:"context,omitempty"`
	Priority    int            `json:"priority"`
	Status      QuestionStatus `json:"status" validate:"required,oneof=pending answered"`
	Answer      string         `json:"answer,omitempty"`
	ContentHash string         `json:"content_hash" validate:"required"`
	CreatedAt   time.Time      `json:"created_at" validate:"required"`
	AnsweredAt  *time.Time     `json:"answered_at,omitempty"`
}
