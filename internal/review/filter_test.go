package review

import "testing"

func TestGetFilteredFindings(t *testing.T) {
	tests := []struct {
		filter Filter
		want   int
	}{
		{FilterAll, 3},
		{FilterWarnings, 2},
		{FilterCritical, 1},
	}
	for _, tt := range tests {
		t.Run(tt.filter.String(), func(t *testing.T) {
			m := NewReviewModel("run", sampleIssues())
			m.filter = tt.filter
			if got := len(m.getFilteredFindings()); got != tt.want {
				t.Errorf("expected %d findings, got %d", tt.want, got)
			}
		})
	}
}

func TestGetFilteredFiles(t *testing.T) {
	m := NewReviewModel("run", sampleIssues())
	m.filter = FilterWarnings

	files := m.getFilteredFiles()
	if len(files) != 1 {
		t.Fatalf("expected only a.c to remain, got %v", files)
	}
	if len(files["a.c"]) != 2 {
		t.Errorf("expected 2 findings in a.c, got %d", len(files["a.c"]))
	}
}

func TestCurrent_OutOfRange(t *testing.T) {
	m := NewReviewModel("run", sampleIssues())
	m.filter = FilterCritical
	m.currentFinding = 2
	if _, ok := m.current(); ok {
		t.Error("an index past the filtered list should not select a finding")
	}
}
