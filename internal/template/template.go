// Package template loads plan templates: the section skeletons a new plan
// is created from, with per-section constraints the validation stage
// enforces.
package template

import (
	_ "embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/glowus/planpress/models"
)

//go:embed templates/business_plan.yaml
var defaultTemplateYAML []byte

// SectionDef declares one section of a template.
type SectionDef struct {
	Key                 string   `yaml:"key"`
	Title               string   `yaml:"title"`
	Order               int      `yaml:"order"`
	MaxCharLimit        int      `yaml:"max_char_limit"`
	RequiredSubsections []string `yaml:"required_subsections"`
	Importance          int      `yaml:"importance"`
	Guidance            string   `yaml:"guidance"`
	// Needs lists the fact keys the section cannot be drafted without.
	// Missing needs surface as unresolved-fact placeholders in the draft.
	Needs []string `yaml:"needs"`
}

// Template is a named plan skeleton.
type Template struct {
	Key            string       `yaml:"key"`
	Name           string       `yaml:"name"`
	ResearchTopics []string     `yaml:"research_topics"`
	Sections       []SectionDef `yaml:"sections"`
}

func (t *Template) validate() error {
	if t.Key == "" {
		return fmt.Errorf("template key required")
	}
	if len(t.Sections) == 0 {
		return fmt.Errorf("template %q declares no sections", t.Key)
	}
	seen := make(map[string]bool, len(t.Sections))
	for _, s := range t.Sections {
		if s.Key == "" || s.Title == "" {
			return fmt.Errorf("template %q: section key and title required", t.Key)
		}
		if seen[s.Key] {
			return fmt.Errorf("template %q: duplicate section key %q", t.Key, s.Key)
		}
		seen[s.Key] = true
	}
	return nil
}

// NewSections creates the empty sections a fresh plan starts with.
func (t *Template) NewSections() []models.Section {
	defs := make([]SectionDef, len(t.Sections))
	copy(defs, t.Sections)
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Order < defs[j].Order })

	now := time.Now()
	out := make([]models.Section, 0, len(defs))
	for _, d := range defs {
		out = append(out, models.Section{
			Key:                 d.Key,
			Title:               d.Title,
			Order:               d.Order,
			MaxCharLimit:        d.MaxCharLimit,
			RequiredSubsections: d.RequiredSubsections,
			Importance:          d.Importance,
			ValidationStatus:    models.ValidationValid,
			Provenance:          models.ProvenanceAI,
			UpdatedAt:           now,
		})
	}
	return out
}

// SectionDefByKey returns the definition for a section key.
func (t *Template) SectionDefByKey(key string) (SectionDef, bool) {
	for _, d := range t.Sections {
		if d.Key == key {
			return d, true
		}
	}
	return SectionDef{}, false
}

// Library holds the loaded templates, safe for concurrent lookup and
// reload.
type Library struct {
	mu        sync.RWMutex
	templates map[string]*Template
	fs        afero.Fs
	dir       string
}

// NewLibrary creates a library seeded with the embedded default template,
// then overlays any *.yaml templates found in dir (optional; pass "" to
// skip).
func NewLibrary(fsys afero.Fs, dir string) (*Library, error) {
	lib := &Library{
		templates: make(map[string]*Template),
		fs:        fsys,
		dir:       dir,
	}

	def, err := Parse(defaultTemplateYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded template: %w", err)
	}
	lib.templates[def.Key] = def

	if dir != "" {
		if err := lib.Reload(); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// Parse decodes and validates one YAML template document.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Reload re-reads every *.yaml file in the library directory. Templates
// sharing a key replace earlier loads; the embedded default stays available
// unless overridden.
func (l *Library) Reload() error {
	if l.dir == "" {
		return nil
	}
	loaded := make(map[string]*Template)

	err := afero.Walk(l.fs, l.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := afero.ReadFile(l.fs, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		t, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		loaded[t.Key] = t
		return nil
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	def, _ := Parse(defaultTemplateYAML)
	l.templates = map[string]*Template{def.Key: def}
	for k, t := range loaded {
		l.templates[k] = t
	}
	return nil
}

// Get returns the template for key.
func (l *Library) Get(key string) (*Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[key]
	if !ok {
		return nil, models.NewNotFound("template", key)
	}
	return t, nil
}

// Keys returns the loaded template keys, sorted.
func (l *Library) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.templates))
	for k := range l.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultKey is the key of the embedded template.
func DefaultKey() string {
	def, _ := Parse(defaultTemplateYAML)
	return def.Key
}
