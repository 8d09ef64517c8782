package pipeline

import (
	"reflect"
	"testing"
)

func TestGate_ScanEmitsOneDraftPerMarker(t *testing.T) {
	gate := NewGate()
	sec := SectionView{
		Key:        "financial_plan",
		Title:      "Financial Plan",
		Content:    "{{unresolved:funding amount}} and {{unresolved:projected revenue}}",
		Importance: 1,
	}

	drafts := gate.Scan(sec)
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	for _, d := range drafts {
		if d.SectionKey != "financial_plan" {
			t.Errorf("draft section key = %q", d.SectionKey)
		}
		if d.Priority != 1 {
			t.Errorf("draft priority = %d, want section importance", d.Priority)
		}
		if d.ContentHash == "" || d.Text == "" {
			t.Errorf("draft not fully populated: %+v", d)
		}
	}
	if drafts[0].ContentHash == drafts[1].ContentHash {
		t.Error("distinct markers must have distinct hashes")
	}
}

func TestGate_ScanIdempotent(t *testing.T) {
	gate := NewGate()
	sec := SectionView{
		Key:     "overview",
		Title:   "Company Overview",
		Content: "founded {{unresolved:founding year}}",
	}

	first := gate.Scan(sec)
	second := gate.Scan(sec)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-scanning identical content differs:\n%v\n%v", first, second)
	}
}

func TestGate_ScanNoMarkers(t *testing.T) {
	gate := NewGate()
	if drafts := gate.Scan(SectionView{Key: "a", Title: "A", Content: "done"}); drafts != nil {
		t.Errorf("expected nil, got %v", drafts)
	}
}
