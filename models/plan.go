package models

import (
	"time"
)

// Severity ranks a validation message. Messages on a Section are ordered
// most severe first.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationStatus is the rolled-up validation state of a Section.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationWarning ValidationStatus = "warning"
	ValidationInvalid ValidationStatus = "invalid"
)

// Provenance records who last produced a Section's content.
type Provenance string

const (
	ProvenanceAI    Provenance = "ai"
	ProvenanceHuman Provenance = "human"
)

// ValidationMessage is one finding produced by the validation aggregator.
type ValidationMessage struct {
	Severity Severity `json:"severity" validate:"required,oneof=error warning info"`
	Code     string   `json:"code" validate:"required"`
	Message  string   `json:"message" validate:"required"`
}

// Placeholder is an unresolved-fact marker found in Section content.
// Hash is stable for identical (section key, marker text) pairs so repeated
// scans do not mint duplicate questions.
type Placeholder struct {
	Hash     string `json:"hash" validate:"required"`
	Text     string `json:"text" validate:"required"`
	Question string `json:"question"`
}

// Section is one addressable content unit of a Plan.
type Section struct {
	Key                 string              `json:"key" validate:"required"`
	Title               string              `json:"title" validate:"required"`
	Order               int                 `json:"order" validate:"gte=0"`
	Content             string              `json:"content"`
	CharCount           int                 `json:"char_count" validate:"gte=0"`
	MaxCharLimit        int                 `json:"max_char_limit,omitempty" validate:"gte=0"`
	RequiredSubsections []string            `json:"required_subsections,omitempty"`
	Importance          int                 `json:"importance" validate:"gte=0"`
	ValidationStatus    ValidationStatus    `json:"validation_status" validate:"required,oneof=valid warning invalid"`
	ValidationMessages  []ValidationMessage `json:"validation_messages,omitempty" validate:"dive"`
	Placeholders        []Placeholder       `json:"placeholders,omitempty" validate:"dive"`
	Provenance          Provenance          `json:"provenance" validate:"required,oneof=ai human"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// Usage accumulates model resource consumption for a plan or a stage run.
type Usage struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// Add returns the element-wise sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		Tokens:  u.Tokens + other.Tokens,
		CostUSD: u.CostUSD + other.CostUSD,
	}
}

// Plan is the multi-section document under construction. While a Job is
// active the plan's sections are owned exclusively by the pipeline; external
// edits are rejected with a conflict.
type Plan struct {
	ID           string    `json:"id" validate:"required,uuid4"`
	Title        string    `json:"title" validate:"required,min=1,max=255"`
	TemplateKey  string    `json:"template_key" validate:"required"`
	Brief        string    `json:"brief,omitempty"`
	Sections     []Section `json:"sections" validate:"dive"`
	Document     string    `json:"document,omitempty"`
	Completion   int       `json:"completion" validate:"gte=0,lte=100"`
	CurrentStage int       `json:"current_stage" validate:"gte=0"`
	Usage        Usage     `json:"usage"`
	CreatedAt    time.Time `json:"created_at" validate:"required"`
	UpdatedAt    time.Time `json:"updated_at" validate:"required"`
}

// SectionByKey returns a pointer to the plan's section with the given key,
// or nil when absent.
func (p *Plan) SectionByKey(key string) *Section {
	for i := range p.Sections {
		if p.Sections[i].Key == key {
			return &p.Sections[i]
		}
	}
	return nil
}

// MergeSection replaces the section with the same key, or appends when the
// plan has no section under that key yet.
func (p *Plan) MergeSection(sec Section) {
	for i := range p.Sections {
		if p.Sections[i].Key == sec.Key {
			p.Sections[i] = sec
			return
		}
	}
	p.Sections = append(p.Sections, sec)
}

// RecomputeCompletion sets Completion to the percentage of sections that
// carry no unresolved placeholders and are not invalid. An empty plan is 0%.
func (p *Plan) RecomputeCompletion() {
	if len(p.Sections) == 0 {
		p.Completion = 0
		return
	}
	done := 0
	for i := range p.Sections {
		s := &p.Sections[i]
		if len(s.Placeholders) == 0 && s.ValidationStatus != ValidationInvalid {
			done++
		}
	}
	p.Completion = 100 * done / len(p.Sections)
}
