package template

import (
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/glowus/planpress/models"
)

const customTemplate = `
key: pitch_deck
name: Pitch Deck
research_topics:
  - investor landscape
sections:
  - key: problem
    title: Problem
    order: 1
    importance: 1
    needs: [one-line pitch]
  - key: solution
    title: Solution
    order: 2
    importance: 1
    max_char_limit: 500
`

func TestParse(t *testing.T) {
	tmpl, err := Parse([]byte(customTemplate))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tmpl.Key != "pitch_deck" || len(tmpl.Sections) != 2 {
		t.Errorf("template = %+v", tmpl)
	}
	if tmpl.Sections[1].MaxCharLimit != 500 {
		t.Errorf("max_char_limit = %d", tmpl.Sections[1].MaxCharLimit)
	}
	if len(tmpl.ResearchTopics) != 1 {
		t.Errorf("research_topics = %v", tmpl.ResearchTopics)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing key", "name: X\nsections:\n  - key: a\n    title: A\n"},
		{"no sections", "key: x\nname: X\n"},
		{"section without title", "key: x\nsections:\n  - key: a\n"},
		{"duplicate section key", "key: x\nsections:\n  - key: a\n    title: A\n  - key: a\n    title: B\n"},
		{"bad yaml", "key: [unterminated"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEmbeddedDefault(t *testing.T) {
	lib, err := NewLibrary(afero.NewMemMapFs(), "")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	tmpl, err := lib.Get(DefaultKey())
	if err != nil {
		t.Fatalf("Get default: %v", err)
	}
	if len(tmpl.Sections) == 0 {
		t.Fatal("default template has no sections")
	}
	found := false
	for _, s := range tmpl.Sections {
		if s.Key == "executive_summary" {
			found = true
		}
	}
	if !found {
		t.Error("default template missing executive_summary")
	}
}

func TestLibraryOverlayAndReload(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/templates", 0755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/templates/pitch.yaml", []byte(customTemplate), 0644); err != nil {
		t.Fatal(err)
	}

	lib, err := NewLibrary(fs, "/templates")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	if _, err := lib.Get("pitch_deck"); err != nil {
		t.Fatalf("overlay template not loaded: %v", err)
	}
	if _, err := lib.Get(DefaultKey()); err != nil {
		t.Fatalf("embedded default lost after overlay: %v", err)
	}

	// A new file appears and an old one is removed; Reload reflects both.
	revised := strings.Replace(customTemplate, "pitch_deck", "pitch_deck_v2", 1)
	if err := afero.WriteFile(fs, "/templates/pitch2.yml", []byte(revised), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove("/templates/pitch.yaml"); err != nil {
		t.Fatal(err)
	}
	if err := lib.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := lib.Get("pitch_deck_v2"); err != nil {
		t.Errorf("new template not picked up: %v", err)
	}
	if _, err := lib.Get("pitch_deck"); err == nil {
		t.Error("removed template still served")
	}

	keys := lib.Keys()
	if len(keys) != 2 {
		t.Errorf("keys = %v", keys)
	}
}

func TestLibraryReloadRejectsBrokenTemplate(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/templates/broken.yaml", []byte("key: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLibrary(fs, "/templates"); err == nil {
		t.Fatal("expected error for broken template")
	}
}

func TestNewSections(t *testing.T) {
	tmpl, err := Parse([]byte(`
key: x
sections:
  - key: b
    title: B
    order: 2
    max_char_limit: 100
    required_subsections: [Team]
    importance: 2
  - key: a
    title: A
    order: 1
    importance: 1
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	secs := tmpl.NewSections()
	if len(secs) != 2 {
		t.Fatalf("sections = %d", len(secs))
	}
	if secs[0].Key != "a" || secs[1].Key != "b" {
		t.Errorf("sections not ordered: %s, %s", secs[0].Key, secs[1].Key)
	}
	for _, s := range secs {
		if s.Content != "" {
			t.Errorf("section %s starts with content", s.Key)
		}
		if s.ValidationStatus != models.ValidationValid || s.Provenance != models.ProvenanceAI {
			t.Errorf("section %s = %s/%s", s.Key, s.ValidationStatus, s.Provenance)
		}
	}
	if secs[1].MaxCharLimit != 100 || len(secs[1].RequiredSubsections) != 1 {
		t.Errorf("constraints lost: %+v", secs[1])
	}
}

func TestSectionDefByKey(t *testing.T) {
	tmpl, _ := Parse([]byte(customTemplate))
	d, ok := tmpl.SectionDefByKey("solution")
	if !ok || d.Title != "Solution" {
		t.Errorf("def = %+v ok=%v", d, ok)
	}
	if _, ok := tmpl.SectionDefByKey("missing"); ok {
		t.Error("unexpected match")
	}
}
