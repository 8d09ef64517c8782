// Package stages provides the built-in executors for the eight canonical
// pipeline stages. Content generation itself stays behind the Generator
// interface so a model-backed implementation can be swapped in without
// touching the pipeline core.
package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/glowus/planpress/internal/template"
	"github.com/glowus/planpress/models"
)

// DraftRequest carries everything a generator needs to draft one section.
type DraftRequest struct {
	PlanTitle string
	Brief     string
	Def       template.SectionDef
	// Facts holds every extracted fact, keyed by lowercase fact name.
	Facts map[string]string
	// FactKeys are the facts mapped to this section, in mapping order.
	FactKeys []string
	// Research holds notes per research topic, when the research stage ran.
	Research map[string]string
}

// Generator drafts section content. Implementations must keep unresolvable
// facts visible by emitting unresolved-fact markers rather than inventing
// values.
type Generator interface {
	DraftSection(ctx context.Context, req DraftRequest) (string, models.Usage, error)
}

// TemplateGenerator is the deterministic built-in generator: it scaffolds
// section content from the template definition and the extracted facts, and
// marks every missing needed fact with an unresolved placeholder. It makes
// no network calls, so the full pipeline runs offline.
type TemplateGenerator struct{}

// NewTemplateGenerator creates the built-in generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// DraftSection implements Generator.
func (g *TemplateGenerator) DraftSection(_ context.Context, req DraftRequest) (string, models.Usage, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s\n\n", req.Def.Title)
	if req.Def.Guidance != "" {
		fmt.Fprintf(&b, "%s\n\n", req.Def.Guidance)
	}

	for _, sub := range req.Def.RequiredSubsections {
		fmt.Fprintf(&b, "### %s\n\n", sub)
	}

	if len(req.FactKeys) > 0 {
		keys := make([]string, len(req.FactKeys))
		copy(keys, req.FactKeys)
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Facts[k])
		}
		b.WriteString("\n")
	}

	for _, need := range req.Def.Needs {
		if _, ok := req.Facts[strings.ToLower(need)]; !ok {
			fmt.Fprintf(&b, "{{unresolved:%s}}\n", need)
		}
	}

	if len(req.Research) > 0 {
		topics := make([]string, 0, len(req.Research))
		for t := range req.Research {
			topics = append(topics, t)
		}
		sort.Strings(topics)
		for _, t := range topics {
			fmt.Fprintf(&b, "> %s: %s\n", t, req.Research[t])
		}
	}

	content := strings.TrimRight(b.String(), "\n") + "\n"
	usage := models.Usage{Tokens: len(content) / 4}
	return content, usage, nil
}
