package credibility

import (
	"testing"
	"time"

	"github.com/oceanguard/hazard-fusion/pkg/models"
)

func TestScore_SourceReliabilityOrdering(t *testing.T) {
	incois := Score(models.SourceINCOIS, "heavy flooding reported near the coast this morning", 13.08, 80.27, time.Now(), nil, nil)
	citizen := Score(models.SourceCitizen, "heavy flooding reported near the coast this morning", 13.08, 80.27, time.Now(), nil, nil)
	if incois.Score <= citizen.Score {
		t.Fatalf("expected incois score > citizen score, got %v <= %v", incois.Score, citizen.Score)
	}
}

func TestScore_TemporalCliffs(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		ts   time.Time
		want float64
	}{
		{"within 1h", now.Add(-30 * time.Minute), 1.0},
		{"within 1d", now.Add(-12 * time.Hour), 0.9},
		{"within 7d", now.Add(-3 * 24 * time.Hour), 0.7},
		{"within 30d", now.Add(-20 * 24 * time.Hour), 0.4},
		{"older", now.Add(-60 * 24 * time.Hour), 0.2},
		{"future", now.Add(1 * time.Hour), 0.1},
	}
	for _, c := range cases {
		got := scoreTemporalConsistency(c.ts)
		if got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}
}

func TestScore_ZeroTimestampIsNeutral(t *testing.T) {
	got := scoreTemporalConsistency(time.Time{})
	if got != 0.5 {
		t.Fatalf("expected neutral 0.5 for zero timestamp, got %v", got)
	}
}

func TestScoreGeoAccuracy_OutOfRangeCoordinates(t *testing.T) {
	got := scoreGeoAccuracy(95.0, 200.0, nil)
	if got != 0.0 {
		t.Fatalf("expected 0 for out-of-range coordinates, got %v", got)
	}
}

func TestScoreGeoAccuracy_GPSAccuracyTiers(t *testing.T) {
	tight := 10.0
	loose := 500.0
	tightScore := scoreGeoAccuracy(13.0827, 80.2707, &tight)
	looseScore := scoreGeoAccuracy(13.0827, 80.2707, &loose)
	if tightScore <= looseScore {
		t.Fatalf("expected tighter GPS accuracy to score higher: %v <= %v", tightScore, looseScore)
	}
}

func TestScoreTextQuality_SpamPenaltyReducesScore(t *testing.T) {
	clean := scoreTextQuality("Flooding observed near the marina around 6pm, water level rising steadily.")
	spammy := scoreTextQuality("HELPHELPHELP!!!!!! water water rising rising aaaaaaaa")
	if spammy >= clean {
		t.Fatalf("expected spammy text to score lower than clean text: %v >= %v", spammy, clean)
	}
}

func TestScoreTextQuality_EmptyTextIsZero(t *testing.T) {
	if got := scoreTextQuality("   "); got != 0.0 {
		t.Fatalf("expected 0 for blank text, got %v", got)
	}
}

func TestScoreMediaPresence(t *testing.T) {
	if scoreMediaPresence(nil) != 0.2 {
		t.Fatalf("expected 0.2 with no media")
	}
	if scoreMediaPresence([]string{"photo.jpg"}) != 0.8 {
		t.Fatalf("expected 0.8 with media present")
	}
}

func TestScore_FeaturesSumToWeightedTotal(t *testing.T) {
	result := Score(models.SourceCitizen, "some report text here with details", 13.0, 80.0, time.Now(), []string{"a.jpg"}, nil)
	if result.Score < 0 || result.Score > 1 {
		t.Fatalf("total score must be in [0,1], got %v", result.Score)
	}
	if len(result.Features) != 6 {
		t.Fatalf("expected 6 features, got %d", len(result.Features))
	}
	if result.Explanation == "" {
		t.Fatalf("expected non-empty explanation")
	}
}
