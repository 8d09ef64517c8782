package models

import "testing"

func TestRecomputeCompletion(t *testing.T) {
	cases := []struct {
		name     string
		sections []Section
		want     int
	}{
		{
			name: "empty plan",
			want: 0,
		},
		{
			name: "all sections resolved and valid",
			sections: []Section{
				{Key: "a", Content: "done", ValidationStatus: ValidationValid},
				{Key: "b", Content: "done", ValidationStatus: ValidationWarning},
			},
			want: 100,
		},
		{
			name: "placeholders count as incomplete",
			sections: []Section{
				{Key: "a", Content: "done", ValidationStatus: ValidationValid},
				{Key: "b", Content: "x", ValidationStatus: ValidationWarning,
					Placeholders: []Placeholder{{Hash: "h", Text: "revenue"}}},
			},
			want: 50,
		},
		{
			name: "invalid sections count as incomplete",
			sections: []Section{
				{Key: "a", Content: "done", ValidationStatus: ValidationValid},
				{Key: "b", Content: "too long", ValidationStatus: ValidationInvalid},
			},
			want: 50,
		},
		{
			name: "empty content with no findings is complete",
			sections: []Section{
				{Key: "a", Content: "", ValidationStatus: ValidationValid},
			},
			want: 100,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Plan{ID: "p1", Sections: tc.sections}
			p.RecomputeCompletion()
			if p.Completion != tc.want {
				t.Errorf("completion = %d, want %d", p.Completion, tc.want)
			}
		})
	}
}

func TestMergeSection(t *testing.T) {
	p := &Plan{Sections: []Section{{Key: "a", Content: "old"}}}

	p.MergeSection(Section{Key: "a", Content: "new"})
	if len(p.Sections) != 1 || p.Sections[0].Content != "new" {
		t.Fatalf("merge did not replace in place: %+v", p.Sections)
	}

	p.MergeSection(Section{Key: "b", Content: "added"})
	if len(p.Sections) != 2 || p.SectionByKey("b") == nil {
		t.Fatalf("merge did not append new key: %+v", p.Sections)
	}
}
