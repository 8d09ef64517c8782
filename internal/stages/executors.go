package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/glowus/planpress/internal/pipeline"
	"github.com/glowus/planpress/internal/template"
	"github.com/glowus/planpress/models"
)

// Set supplies the executor for each canonical stage of one pipeline run.
// The set carries the per-run artifacts each stage hands to the next:
// constraints from template analysis, facts from extraction, the
// fact-to-section mapping, and research notes. Sets must not be reused
// across jobs.
type Set struct {
	library *template.Library
	gen     Generator
	gate    *pipeline.Gate

	tmpl     *template.Template
	facts    map[string]string
	mapping  map[string][]string
	research map[string]string
}

// NewSet builds an executor set for one run.
func NewSet(library *template.Library, gen Generator) *Set {
	return &Set{
		library: library,
		gen:     gen,
		gate:    pipeline.NewGate(),
	}
}

// Executor implements pipeline.ExecutorSet.
func (s *Set) Executor(stage pipeline.Stage) (pipeline.Executor, error) {
	switch stage.Ordinal {
	case pipeline.StageTemplateAnalysis:
		return pipeline.ExecutorFunc(s.analyzeTemplate), nil
	case pipeline.StageFactExtraction:
		return pipeline.ExecutorFunc(s.extractFacts), nil
	case pipeline.StageSectionMapping:
		return pipeline.ExecutorFunc(s.mapSections), nil
	case pipeline.StageMarketResearch:
		return pipeline.ExecutorFunc(s.researchMarket), nil
	case pipeline.StageDraftGeneration:
		return pipeline.ExecutorFunc(s.draftSections), nil
	case pipeline.StageContentValidation:
		return pipeline.ExecutorFunc(s.validateContent), nil
	case pipeline.StageQuestionScan:
		return pipeline.ExecutorFunc(s.scanQuestions), nil
	case pipeline.StageDocumentAssembly:
		return pipeline.ExecutorFunc(s.assembleDocument), nil
	}
	return nil, fmt.Errorf("no executor for stage %d (%s)", stage.Ordinal, stage.Key)
}

// analyzeTemplate resolves the plan's template and records the section
// constraints later stages draft and validate against.
func (s *Set) analyzeTemplate(_ context.Context, plan *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
	tmpl, err := s.library.Get(plan.TemplateKey)
	if err != nil {
		return nil, err
	}
	s.tmpl = tmpl
	partial(50, fmt.Sprintf("template %s: %d sections", tmpl.Key, len(tmpl.Sections)))
	return &pipeline.Result{Usage: models.Usage{Tokens: len(tmpl.Sections)}}, nil
}

// extractFacts parses the plan brief into named facts. The built-in parser
// reads "name: value" lines; a model-backed extractor would slot in here.
func (s *Set) extractFacts(_ context.Context, plan *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
	s.facts = make(map[string]string)
	lines := strings.Split(plan.Brief, "\n")
	for i, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		s.facts[name] = value
		partial((i+1)*100/len(lines), fmt.Sprintf("extracted %d facts", len(s.facts)))
	}
	return &pipeline.Result{Usage: models.Usage{Tokens: len(plan.Brief) / 4}}, nil
}

// mapSections assigns extracted facts to the sections that need or mention
// them.
func (s *Set) mapSections(_ context.Context, _ *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
	if s.tmpl == nil {
		return nil, fmt.Errorf("template analysis has not run")
	}
	s.mapping = make(map[string][]string)
	for i, def := range s.tmpl.Sections {
		var keys []string
		haystack := strings.ToLower(def.Title + " " + def.Guidance + " " + strings.Join(def.Needs, " "))
		factNames := make([]string, 0, len(s.facts))
		for name := range s.facts {
			factNames = append(factNames, name)
		}
		sort.Strings(factNames)
		for _, name := range factNames {
			if def.Key == "executive_summary" || strings.Contains(haystack, name) {
				keys = append(keys, name)
			}
		}
		s.mapping[def.Key] = keys
		partial((i+1)*100/len(s.tmpl.Sections), fmt.Sprintf("mapped %s", def.Key))
	}
	return &pipeline.Result{}, nil
}

// researchMarket produces one note per template research topic. Not
// applicable when the template declares none.
func (s *Set) researchMarket(_ context.Context, _ *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
	if s.tmpl == nil {
		return nil, fmt.Errorf("template analysis has not run")
	}
	if len(s.tmpl.ResearchTopics) == 0 {
		return nil, pipeline.ErrNotApplicable
	}
	s.research = make(map[string]string)
	for i, topic := range s.tmpl.ResearchTopics {
		if fact, ok := s.facts[strings.ToLower(topic)]; ok {
			s.research[topic] = fact
		} else {
			s.research[topic] = "no data available, research pending"
		}
		partial((i+1)*100/len(s.tmpl.ResearchTopics), "researched "+topic)
	}
	return &pipeline.Result{Usage: models.Usage{Tokens: 8 * len(s.tmpl.ResearchTopics)}}, nil
}

// draftSections generates content for every template section. This is the
// only stage that mutates section content.
func (s *Set) draftSections(ctx context.Context, plan *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
	if s.tmpl == nil {
		return nil, fmt.Errorf("template analysis has not run")
	}
	result := &pipeline.Result{}
	now := time.Now()
	for i, def := range s.tmpl.Sections {
		content, usage, err := s.gen.DraftSection(ctx, DraftRequest{
			PlanTitle: plan.Title,
			Brief:     plan.Brief,
			Def:       def,
			Facts:     s.facts,
			FactKeys:  s.mapping[def.Key],
			Research:  s.researchFor(def),
		})
		if err != nil {
			return nil, fmt.Errorf("draft %s: %w", def.Key, err)
		}
		result.Sections = append(result.Sections, models.Section{
			Key:                 def.Key,
			Title:               def.Title,
			Order:               def.Order,
			Content:             content,
			MaxCharLimit:        def.MaxCharLimit,
			RequiredSubsections: def.RequiredSubsections,
			Importance:          def.Importance,
			Provenance:          models.ProvenanceAI,
			UpdatedAt:           now,
		})
		result.Usage = result.Usage.Add(usage)
		partial((i+1)*100/len(s.tmpl.Sections), "drafted "+def.Title)
	}
	return result, nil
}

// researchFor returns the research notes relevant to a section: the market
// analysis section gets everything, others nothing.
func (s *Set) researchFor(def template.SectionDef) map[string]string {
	if def.Key != "market_analysis" {
		return nil
	}
	return s.research
}

// validateContent re-validates every section against its constraints. The
// returned sections carry unchanged content; the stage runner refreshes
// their validation state on merge.
func (s *Set) validateContent(_ context.Context, plan *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
	result := &pipeline.Result{}
	for i, sec := range plan.Sections {
		result.Sections = append(result.Sections, sec)
		partial((i+1)*100/len(plan.Sections), "validated "+sec.Key)
	}
	return result, nil
}

// scanQuestions converts unresolved placeholders into question drafts. Not
// applicable when no placeholders remain.
func (s *Set) scanQuestions(_ context.Context, plan *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
	result := &pipeline.Result{}
	for i, sec := range plan.Sections {
		drafts := s.gate.Scan(pipeline.SectionView{
			Key:        sec.Key,
			Title:      sec.Title,
			Content:    sec.Content,
			Importance: sec.Importance,
		})
		result.Questions = append(result.Questions, drafts...)
		partial((i+1)*100/len(plan.Sections), fmt.Sprintf("scanned %s: %d open facts", sec.Key, len(drafts)))
	}
	if len(result.Questions) == 0 {
		return nil, pipeline.ErrNotApplicable
	}
	return result, nil
}

// assembleDocument joins the sections in order into the final document
// text. Unresolved placeholders are left in place, flagged for the user by
// the question stage.
func (s *Set) assembleDocument(_ context.Context, plan *models.Plan, partial pipeline.PartialFunc) (*pipeline.Result, error) {
	sections := make([]models.Section, len(plan.Sections))
	copy(sections, plan.Sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", plan.Title)
	for i, sec := range sections {
		b.WriteString(sec.Content)
		if !strings.HasSuffix(sec.Content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
		partial((i+1)*100/len(sections), "assembled "+sec.Key)
	}
	return &pipeline.Result{Document: strings.TrimRight(b.String(), "\n") + "\n"}, nil
}
