// Package pipeline implements the document generation pipeline core: the
// ordered stage registry, per-stage execution, validation aggregation,
// placeholder scanning and the sequential pipeline runner.
package pipeline

import "fmt"

// Stage is one ordered, named step of the pipeline definition. Stage
// definitions are immutable; per-run state lives in models.StageRun.
type Stage struct {
	Ordinal     int
	Key         string
	Name        string
	Description string
	Required    bool
}

// Canonical stage ordinals. Draft generation is the only stage that mutates
// section content; question scanning runs after drafting and validation and
// never blocks assembly.
const (
	StageTemplateAnalysis  = 1
	StageFactExtraction    = 2
	StageSectionMapping    = 3
	StageMarketResearch    = 4
	StageDraftGeneration   = 5
	StageContentValidation = 6
	StageQuestionScan      = 7
	StageDocumentAssembly  = 8
)

// Registry is the static, ordered list of stage descriptors for one pipeline
// type.
type Registry struct {
	stages []Stage
}

// NewRegistry builds a registry from the given stages. Stages must be
// supplied in ascending ordinal order starting at 1.
func NewRegistry(stages []Stage) (*Registry, error) {
	for i, s := range stages {
		if s.Ordinal != i+1 {
			return nil, fmt.Errorf("stage %q has ordinal %d, want %d", s.Key, s.Ordinal, i+1)
		}
		if s.Key == "" {
			return nil, fmt.Errorf("stage %d has empty key", s.Ordinal)
		}
	}
	return &Registry{stages: stages}, nil
}

// DefaultRegistry returns the canonical eight-stage business plan pipeline.
func DefaultRegistry() *Registry {
	r, err := NewRegistry([]Stage{
		{Ordinal: StageTemplateAnalysis, Key: "template_analysis", Name: "Template Analysis", Description: "Parse the plan template and derive section constraints", Required: true},
		{Ordinal: StageFactExtraction, Key: "fact_extraction", Name: "Fact Extraction", Description: "Extract company facts from the source brief", Required: true},
		{Ordinal: StageSectionMapping, Key: "section_mapping", Name: "Section Mapping", Description: "Map extracted facts onto template sections", Required: true},
		{Ordinal: StageMarketResearch, Key: "market_research", Name: "Market Research", Description: "Enrich sections with market context", Required: false},
		{Ordinal: StageDraftGeneration, Key: "draft_generation", Name: "Draft Generation", Description: "Generate section content", Required: true},
		{Ordinal: StageContentValidation, Key: "content_validation", Name: "Content Validation", Description: "Validate sections against constraints", Required: true},
		{Ordinal: StageQuestionScan, Key: "question_scan", Name: "Question Scan", Description: "Convert unresolved placeholders into questions", Required: false},
		{Ordinal: StageDocumentAssembly, Key: "document_assembly", Name: "Document Assembly", Description: "Assemble the final ordered document", Required: true},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// Stages returns the ordered stage descriptors.
func (r *Registry) Stages() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// Len returns the number of stages.
func (r *Registry) Len() int {
	return len(r.stages)
}

// Get returns the stage with the given ordinal.
func (r *Registry) Get(ordinal int) (Stage, bool) {
	if ordinal < 1 || ordinal > len(r.stages) {
		return Stage{}, false
	}
	return r.stages[ordinal-1], true
}
