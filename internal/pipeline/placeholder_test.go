package pipeline

import (
	"testing"
)

func TestScanMarkers_FindsAllInOrder(t *testing.T) {
	content := "Revenue is {{unresolved:annual revenue}} and HQ is {{unresolved:headquarters city}}."

	markers := ScanMarkers(content)
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(markers))
	}
	if markers[0].Text != "annual revenue" {
		t.Errorf("first marker text = %q", markers[0].Text)
	}
	if markers[1].Text != "headquarters city" {
		t.Errorf("second marker text = %q", markers[1].Text)
	}
	if markers[0].Start >= markers[1].Start {
		t.Error("markers not in content order")
	}
	if got := markers[0].Raw(content); got != "{{unresolved:annual revenue}}" {
		t.Errorf("Raw() = %q", got)
	}
}

func TestScanMarkers_NoMarkers(t *testing.T) {
	if got := ScanMarkers("plain content, no markers"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestScanMarkers_MalformedMarkerIgnored(t *testing.T) {
	markers := ScanMarkers("ok {{unresolved:first}} then broken {{unresolved:no close")
	if len(markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(markers))
	}
	if markers[0].Text != "first" {
		t.Errorf("marker text = %q", markers[0].Text)
	}
}

func TestScanMarkers_TrimsWhitespace(t *testing.T) {
	markers := ScanMarkers("{{unresolved:  funding amount  }}")
	if len(markers) != 1 || markers[0].Text != "funding amount" {
		t.Fatalf("got %v", markers)
	}
}

func TestMarkerHash_StablePerSectionAndText(t *testing.T) {
	a := MarkerHash("financial_plan", "projected revenue")
	b := MarkerHash("financial_plan", "projected revenue")
	if a != b {
		t.Error("hash not stable for identical input")
	}
	if MarkerHash("company_overview", "projected revenue") == a {
		t.Error("hash should vary by section key")
	}
	if MarkerHash("financial_plan", "funding amount") == a {
		t.Error("hash should vary by marker text")
	}
}

func TestReplaceMarker_ReplacesEveryOccurrence(t *testing.T) {
	content := "x {{unresolved:name}} y {{unresolved:name}} z {{unresolved:other}}"

	got := ReplaceMarker(content, "name", "Acme")
	want := "x Acme y Acme z {{unresolved:other}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// Answers are free-form text and may themselves contain marker syntax. The
// substitution must terminate and keep the answer verbatim rather than
// re-scanning it.
func TestReplaceMarker_AnswerMayContainSameMarker(t *testing.T) {
	content := "revenue: {{unresolved:annual revenue}}"
	answer := "{{unresolved:annual revenue}} (unknown)"

	got := ReplaceMarker(content, "annual revenue", answer)
	want := "revenue: {{unresolved:annual revenue}} (unknown)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReplaceMarker_NoMatchLeavesContentUntouched(t *testing.T) {
	content := "x {{unresolved:name}} y"
	if got := ReplaceMarker(content, "other", "Acme"); got != content {
		t.Errorf("got %q, want unchanged content", got)
	}
}
