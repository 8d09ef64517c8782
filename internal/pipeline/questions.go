package pipeline

import (
	"fmt"
)

// questionText phrases a placeholder description as a question for the user.
func questionText(sectionTitle, markerText string) string {
	return fmt.Sprintf("What is the %s? (needed for %q)", markerText, sectionTitle)
}

// Gate converts unresolved placeholders in section content into question
// drafts. Scanning is idempotent: identical content yields identical drafts
// keyed by the same content hash, so repeated pipeline runs never create
// duplicates for an unchanged placeholder.
type Gate struct{}

// NewGate creates a question gate.
func NewGate() *Gate {
	return &Gate{}
}

// Scan returns one draft per placeholder marker in the section, in content
// order. Priority derives from the section's stage-assigned importance:
// lower importance value means more urgent.
func (g *Gate) Scan(sec SectionView) []QuestionDraft {
	markers := ScanMarkers(sec.Content)
	if len(markers) == 0 {
		return nil
	}
	drafts := make([]QuestionDraft, 0, len(markers))
	for _, m := range markers {
		drafts = append(drafts, QuestionDraft{
			SectionKey:  sec.Key,
			Text:        questionText(sec.Title, m.Text),
			Context:     m.Raw(sec.Content),
			Priority:    sec.Importance,
			ContentHash: MarkerHash(sec.Key, m.Text),
		})
	}
	return drafts
}

// SectionView is the slice of section state the gate needs.
type SectionView struct {
	Key        string
	Title      string
	Content    string
	Importance int
}
