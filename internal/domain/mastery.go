package domain

// Scoring and state machine constants.
const (
	// ScoreWindow is how many trailing responses feed the weighted score.
	ScoreWindow = 5

	QualityMin = 0
	QualityMax = 5
	// PassingQuality is the lowest quality counted as a pass.
	PassingQuality = 3

	// Graduation from reviewing to mastered requires the score threshold AND
	// the last GraduationReviewCount review-type responses all at or above
	// GraduationReviewQuality.
	GraduationScore         = 0.85
	GraduationReviewCount   = 3
	GraduationReviewQuality = 4

	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3

	// Diagnostic seeds for passing probes are clamped into this band; a seed
	// can never claim full mastery.
	DiagnosticSeedMin = 0.3
	DiagnosticSeedMax = 0.7
)

// Struggle detection.
const (
	StruggleMinResponses = 3
	StruggleLowQuality   = 2

	StruggleConsecutiveLowQuality = "consecutive_low_quality"
	StruggleDecliningScore        = "declining_score"
)

// WeightedScore computes the recency-weighted mastery score over qualities
// ordered oldest to newest. Weights rise linearly from 1 at the oldest entry
// to len at the newest, and the denominator normalizes against a run of
// perfect qualities, so [5,5,5,5,5] scores exactly 1.0 and [0,0,0,0,0]
// exactly 0.0. Only the trailing ScoreWindow entries count.
func WeightedScore(qualities []int) float64 {
	if len(qualities) == 0 {
		return 0.0
	}
	if len(qualities) > ScoreWindow {
		qualities = qualities[len(qualities)-ScoreWindow:]
	}
	var weighted, weights float64
	for i, q := range qualities {
		w := float64(i + 1)
		weighted += float64(q) * w
		weights += w
	}
	return Clamp01(weighted / (float64(QualityMax) * weights))
}

func Clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// ClampDiagnosticSeed forces a passing probe's inferred mastery into the
// allowed seed band.
func ClampDiagnosticSeed(v float64) float64 {
	if v < DiagnosticSeedMin {
		return DiagnosticSeedMin
	}
	if v > DiagnosticSeedMax {
		return DiagnosticSeedMax
	}
	return v
}

// GraduationEligible reports whether a reviewing node may graduate to
// mastered. recentReviewQualities holds the qualities of the most recent
// review-type responses, at most GraduationReviewCount of them; fewer than
// GraduationReviewCount qualifying responses never graduates, whatever the
// score.
func GraduationEligible(score float64, recentReviewQualities []int) bool {
	if score < GraduationScore {
		return false
	}
	if len(recentReviewQualities) < GraduationReviewCount {
		return false
	}
	for _, q := range recentReviewQualities[:GraduationReviewCount] {
		if q < GraduationReviewQuality {
			return false
		}
	}
	return true
}

// NextMasteryStatus applies the transition table for a newly recorded
// response. score is the weighted score including the new response;
// recentReviewQualities feeds the graduation check (see GraduationEligible).
// The returned status equals current when no transition fires. Mastered is
// terminal except for the spaced-repetition re-entry on a review response.
func NextMasteryStatus(current MasteryStatus, respType ResponseType, quality int, score float64, recentReviewQualities []int) MasteryStatus {
	switch current {
	case MasteryUnseen:
		switch respType {
		case ResponseDiagnostic:
			return MasteryDiagnosed
		case ResponseTeach:
			return MasteryLearning
		}
		return MasteryUnseen
	case MasteryDiagnosed:
		if respType == ResponseTeach {
			return MasteryLearning
		}
		if quality < PassingQuality {
			// Self-correction: a failed response after diagnosis drops the
			// node back into active learning.
			return MasteryLearning
		}
		return MasteryDiagnosed
	case MasteryLearning:
		if respType == ResponseReview && quality >= PassingQuality {
			return MasteryReviewing
		}
		return MasteryLearning
	case MasteryReviewing:
		if quality < PassingQuality {
			// Regression.
			return MasteryLearning
		}
		if GraduationEligible(score, recentReviewQualities) {
			return MasteryMastered
		}
		return MasteryReviewing
	case MasteryMastered:
		if respType == ResponseReview {
			// Spaced-repetition re-entry.
			return MasteryReviewing
		}
		return MasteryMastered
	}
	return current
}

// StruggleReasons evaluates the two struggle heuristics over a node's
// responses, newest first. It returns nil when fewer than
// StruggleMinResponses responses exist.
//
// consecutive_low_quality: the three most recent responses all scored at or
// below StruggleLowQuality.
//
// declining_score: the weighted score over the last 1, 2, and 3 responses is
// strictly increasing with more history, i.e. the trend worsens toward the
// present. The windowed comparison is deliberate; it is not a chronological
// slope and differs from one in edge cases.
func StruggleReasons(qualitiesNewestFirst []int) []string {
	if len(qualitiesNewestFirst) < StruggleMinResponses {
		return nil
	}
	var reasons []string

	allLow := true
	for _, q := range qualitiesNewestFirst[:StruggleMinResponses] {
		if q > StruggleLowQuality {
			allLow = false
			break
		}
	}
	if allLow {
		reasons = append(reasons, StruggleConsecutiveLowQuality)
	}

	s1 := scoreOverRecent(qualitiesNewestFirst, 1)
	s2 := scoreOverRecent(qualitiesNewestFirst, 2)
	s3 := scoreOverRecent(qualitiesNewestFirst, 3)
	if s1 < s2 && s2 < s3 {
		reasons = append(reasons, StruggleDecliningScore)
	}
	return reasons
}

// scoreOverRecent computes the weighted score over the k most recent
// responses, reordering them oldest to newest for the weighting.
func scoreOverRecent(qualitiesNewestFirst []int, k int) float64 {
	qs := make([]int, k)
	for i := 0; i < k; i++ {
		qs[k-1-i] = qualitiesNewestFirst[i]
	}
	return WeightedScore(qs)
}

// NextEaseFactor applies the SM-2 ease update for a graded response,
// floored at MinEaseFactor.
func NextEaseFactor(ease float64, quality int) float64 {
	q := float64(quality)
	next := ease + (0.1 - (5.0-q)*(0.08+(5.0-q)*0.02))
	if next < MinEaseFactor {
		return MinEaseFactor
	}
	return next
}

// NextRepetitions increments on a pass and resets on a failure.
func NextRepetitions(repetitions, quality int) int {
	if quality >= PassingQuality {
		return repetitions + 1
	}
	return 0
}
