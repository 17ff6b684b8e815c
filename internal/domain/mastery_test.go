package domain

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWeightedScoreBounds(t *testing.T) {
	if got := WeightedScore([]int{5, 5, 5, 5, 5}); !almostEqual(got, 1.0) {
		t.Fatalf("five perfect responses: got %v, want 1.0", got)
	}
	if got := WeightedScore([]int{0, 0, 0, 0, 0}); !almostEqual(got, 0.0) {
		t.Fatalf("five failed responses: got %v, want 0.0", got)
	}
	if got := WeightedScore(nil); !almostEqual(got, 0.0) {
		t.Fatalf("no responses: got %v, want 0.0", got)
	}
}

func TestWeightedScoreRecency(t *testing.T) {
	recentPass := WeightedScore([]int{0, 5})
	recentFail := WeightedScore([]int{5, 0})
	if recentPass <= recentFail {
		t.Fatalf("recency weighting broken: [0,5]=%v should beat [5,0]=%v", recentPass, recentFail)
	}
	if !almostEqual(recentPass, 10.0/15.0) {
		t.Fatalf("[0,5]: got %v, want %v", recentPass, 10.0/15.0)
	}
	if !almostEqual(recentFail, 5.0/15.0) {
		t.Fatalf("[5,0]: got %v, want %v", recentFail, 5.0/15.0)
	}
}

func TestWeightedScoreWindow(t *testing.T) {
	// Entries beyond the trailing five are ignored.
	windowed := WeightedScore([]int{0, 0, 0, 5, 5, 5, 5, 5})
	if !almostEqual(windowed, 1.0) {
		t.Fatalf("trailing window: got %v, want 1.0", windowed)
	}
}

func TestClampDiagnosticSeed(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.99, 0.7},
		{0.8, 0.7},
		{0.2, 0.3},
		{0.0, 0.3},
		{0.5, 0.5},
		{0.7, 0.7},
		{0.3, 0.3},
	}
	for _, c := range cases {
		if got := ClampDiagnosticSeed(c.in); !almostEqual(got, c.want) {
			t.Fatalf("ClampDiagnosticSeed(%v): got %v, want %v", c.in, got, c.want)
		}
	}
}

func TestGraduationEligible(t *testing.T) {
	if !GraduationEligible(1.0, []int{5, 5, 5}) {
		t.Fatalf("perfect score with three perfect reviews should graduate")
	}
	if GraduationEligible(1.0, []int{5, 5}) {
		t.Fatalf("two qualifying reviews must not graduate regardless of score")
	}
	if GraduationEligible(0.84, []int{5, 5, 5}) {
		t.Fatalf("score below threshold must not graduate")
	}
	if GraduationEligible(0.9, []int{5, 5, 3}) {
		t.Fatalf("a review below quality 4 must block graduation")
	}
	if !GraduationEligible(0.85, []int{4, 4, 4}) {
		t.Fatalf("threshold values should graduate")
	}
}

func TestNextMasteryStatusTable(t *testing.T) {
	cases := []struct {
		name     string
		current  MasteryStatus
		respType ResponseType
		quality  int
		score    float64
		reviews  []int
		want     MasteryStatus
	}{
		{"unseen diagnostic", MasteryUnseen, ResponseDiagnostic, 4, 0.5, nil, MasteryDiagnosed},
		{"unseen teach", MasteryUnseen, ResponseTeach, 4, 0.5, nil, MasteryLearning},
		{"unseen review stays", MasteryUnseen, ResponseReview, 5, 0.5, nil, MasteryUnseen},
		{"diagnosed teach", MasteryDiagnosed, ResponseTeach, 4, 0.5, nil, MasteryLearning},
		{"diagnosed self-correction", MasteryDiagnosed, ResponseReview, 2, 0.3, nil, MasteryLearning},
		{"diagnosed passing review stays", MasteryDiagnosed, ResponseReview, 4, 0.6, nil, MasteryDiagnosed},
		{"learning passing review", MasteryLearning, ResponseReview, 3, 0.5, nil, MasteryReviewing},
		{"learning failure stays", MasteryLearning, ResponseReview, 2, 0.3, nil, MasteryLearning},
		{"learning passing teach stays", MasteryLearning, ResponseTeach, 5, 0.5, nil, MasteryLearning},
		{"reviewing regression", MasteryReviewing, ResponseReview, 2, 0.9, []int{5, 5, 5}, MasteryLearning},
		{"reviewing graduation", MasteryReviewing, ResponseReview, 5, 0.9, []int{5, 5, 5}, MasteryMastered},
		{"reviewing holds without quorum", MasteryReviewing, ResponseReview, 5, 0.9, []int{5, 5}, MasteryReviewing},
		{"reviewing holds below score", MasteryReviewing, ResponseReview, 5, 0.8, []int{5, 5, 5}, MasteryReviewing},
		{"mastered re-entry", MasteryMastered, ResponseReview, 1, 0.2, nil, MasteryReviewing},
		{"mastered ignores teach", MasteryMastered, ResponseTeach, 0, 0.0, nil, MasteryMastered},
		{"mastered ignores diagnostic", MasteryMastered, ResponseDiagnostic, 0, 0.0, nil, MasteryMastered},
	}
	for _, c := range cases {
		got := NextMasteryStatus(c.current, c.respType, c.quality, c.score, c.reviews)
		if got != c.want {
			t.Fatalf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func TestStruggleReasons(t *testing.T) {
	if got := StruggleReasons([]int{1, 1}); got != nil {
		t.Fatalf("fewer than three responses: got %v, want nil", got)
	}
	if got := StruggleReasons([]int{5, 5, 5}); len(got) != 0 {
		t.Fatalf("healthy node: got %v, want none", got)
	}

	got := StruggleReasons([]int{1, 1, 1})
	if len(got) != 1 || got[0] != StruggleConsecutiveLowQuality {
		t.Fatalf("three straight failures: got %v", got)
	}

	// Quality trending down toward the present without dipping below the
	// low-quality bar on every entry.
	got = StruggleReasons([]int{1, 3, 5})
	if len(got) != 1 || got[0] != StruggleDecliningScore {
		t.Fatalf("declining trend: got %v", got)
	}

	// Both heuristics at once.
	got = StruggleReasons([]int{0, 1, 2})
	if len(got) != 2 {
		t.Fatalf("expected both reasons, got %v", got)
	}
	if got[0] != StruggleConsecutiveLowQuality || got[1] != StruggleDecliningScore {
		t.Fatalf("unexpected reason order: %v", got)
	}

	// A flat window is not a decline.
	got = StruggleReasons([]int{2, 2, 2})
	if len(got) != 1 || got[0] != StruggleConsecutiveLowQuality {
		t.Fatalf("flat low window: got %v", got)
	}
}

func TestNextEaseFactor(t *testing.T) {
	if got := NextEaseFactor(2.5, 5); !almostEqual(got, 2.6) {
		t.Fatalf("perfect response: got %v, want 2.6", got)
	}
	if got := NextEaseFactor(2.5, 0); !almostEqual(got, 1.7) {
		t.Fatalf("failed response: got %v, want 1.7", got)
	}
	if got := NextEaseFactor(1.3, 0); !almostEqual(got, MinEaseFactor) {
		t.Fatalf("ease floor: got %v, want %v", got, MinEaseFactor)
	}
}

func TestNextRepetitions(t *testing.T) {
	if got := NextRepetitions(4, 3); got != 5 {
		t.Fatalf("pass should increment: got %d", got)
	}
	if got := NextRepetitions(4, 2); got != 0 {
		t.Fatalf("failure should reset: got %d", got)
	}
}
