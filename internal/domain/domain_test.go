package domain

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestIsMinor(t *testing.T) {
	cases := []struct {
		dob  string
		want bool
	}{
		{"2010-01-01", true},
		{"2007-06-02", true},
		{"2007-06-01", false},
		{"1990-03-15", false},
		{"", false},
		{"not-a-date", false},
	}
	for _, c := range cases {
		if got := IsMinor(c.dob, testNow); got != c.want {
			t.Errorf("IsMinor(%q) = %v, want %v", c.dob, got, c.want)
		}
	}
}

func TestRefreshMinors(t *testing.T) {
	s := Sections{Children: []Child{
		{ID: "c1", DateOfBirth: "2015-01-01", IsMinor: false},
		{ID: "c2", DateOfBirth: "1999-01-01", IsMinor: true},
	}}
	s.RefreshMinors(testNow)
	if !s.Children[0].IsMinor {
		t.Error("child born 2015 should be minor")
	}
	if s.Children[1].IsMinor {
		t.Error("child born 1999 should not be minor")
	}
	if !s.HasMinorChildren(testNow) {
		t.Error("expected HasMinorChildren true")
	}
}

func TestCanBeExecuted(t *testing.T) {
	eligible := Will{
		Status: StatusCompleted,
		Sections: Sections{
			Testator:  &PersonInfo{FirstName: "Ada", LastName: "Lovelace"},
			Executors: []Person{{ID: "p1", FirstName: "Grace", LastName: "Hopper"}},
		},
		Progress: Progress{PercentComplete: 100},
	}
	if !eligible.CanBeExecuted() {
		t.Fatal("expected eligible will to be executable")
	}

	w := eligible
	w.Status = StatusDraft
	if w.CanBeExecuted() {
		t.Error("draft will must not be executable")
	}

	w = eligible
	w.Status = StatusExecuted
	if w.CanBeExecuted() {
		t.Error("already executed will must not be executable")
	}

	w = eligible
	w.Progress.PercentComplete = 80
	if w.CanBeExecuted() {
		t.Error("incomplete will must not be executable")
	}

	w = eligible
	w.Sections.Executors = nil
	if w.CanBeExecuted() {
		t.Error("will without executors must not be executable")
	}

	w = eligible
	w.Sections.Testator = nil
	if w.CanBeExecuted() {
		t.Error("will without testator must not be executable")
	}
}
