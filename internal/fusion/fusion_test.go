package fusion

import (
	"testing"
	"time"

	"github.com/oceanguard/hazard-fusion/pkg/models"
)

func sampleReport(source models.SourceKind, kind models.HazardKind, nlpConf, credibility float64) models.Report {
	return models.Report{
		Source:      source,
		NLPKind:     kind,
		NLPConf:     nlpConf,
		Credibility: credibility,
		Lat:         13.08,
		Lon:         80.27,
		Ts:          time.Now(),
		Text:        "sample report text",
	}
}

func TestConfidence_EmptyReportsIsZero(t *testing.T) {
	if Confidence(nil) != 0.0 {
		t.Fatalf("expected 0 confidence for no reports")
	}
}

func TestConfidence_BoundedByZeroAndOne(t *testing.T) {
	reports := []models.Report{
		sampleReport(models.SourceCitizen, models.HazardFlood, 0.9, 0.9),
		sampleReport(models.SourceINCOIS, models.HazardFlood, 0.9, 0.9),
		sampleReport(models.SourceLoRa, models.HazardFlood, 0.9, 0.9),
		sampleReport(models.SourceSocial, models.HazardFlood, 0.9, 0.9),
	}
	c := Confidence(reports)
	if c < 0 || c > 1 {
		t.Fatalf("confidence must be in [0,1], got %v", c)
	}
}

func TestConfidence_MonotoneInVolume(t *testing.T) {
	one := []models.Report{sampleReport(models.SourceCitizen, models.HazardFlood, 0.6, 0.6)}
	var many []models.Report
	for i := 0; i < 20; i++ {
		many = append(many, sampleReport(models.SourceCitizen, models.HazardFlood, 0.6, 0.6))
	}
	if Confidence(many) < Confidence(one) {
		t.Fatalf("expected confidence to not decrease with more corroborating reports")
	}
}

func TestConfidence_DiminishingReturns(t *testing.T) {
	// Going from 1 -> 10 reports should gain much more than 10 -> 20.
	var ten, twenty []models.Report
	for i := 0; i < 10; i++ {
		ten = append(ten, sampleReport(models.SourceCitizen, models.HazardFlood, 0.6, 0.6))
	}
	twenty = append(twenty, ten...)
	for i := 0; i < 10; i++ {
		twenty = append(twenty, sampleReport(models.SourceCitizen, models.HazardFlood, 0.6, 0.6))
	}
	one := []models.Report{sampleReport(models.SourceCitizen, models.HazardFlood, 0.6, 0.6)}

	gainFirstTen := Confidence(ten) - Confidence(one)
	gainSecondTen := Confidence(twenty) - Confidence(ten)

	if gainSecondTen > gainFirstTen {
		t.Fatalf("expected diminishing returns: first-10 gain %v should exceed second-10 gain %v", gainFirstTen, gainSecondTen)
	}
}

func TestConsensusKind_WeightedVotingPicksStrongestSource(t *testing.T) {
	reports := []models.Report{
		sampleReport(models.SourceSocial, models.HazardFlood, 0.9, 0.9),
		sampleReport(models.SourceINCOIS, models.HazardTsunami, 0.9, 0.9),
	}
	kind := ConsensusKind(reports)
	if kind != models.HazardTsunami {
		t.Fatalf("expected tsunami (incois, higher source weight) to win, got %v", kind)
	}
}

func TestWeightedSeverity_ClampedToRange(t *testing.T) {
	reports := []models.Report{
		{Source: models.SourceCitizen, Credibility: 0.9, SeverityBoost: 10},
	}
	s := WeightedSeverity(reports)
	if s < 1 || s > 5 {
		t.Fatalf("severity must be in [1,5], got %v", s)
	}
}

func TestCentroid_BoundsWithinReportCoordinates(t *testing.T) {
	reports := []models.Report{
		{Source: models.SourceCitizen, Credibility: 0.8, Lat: 10.0, Lon: 80.0},
		{Source: models.SourceCitizen, Credibility: 0.8, Lat: 12.0, Lon: 82.0},
	}
	lat, lon := Centroid(reports)
	if lat < 10.0 || lat > 12.0 {
		t.Fatalf("centroid lat out of bounds: %v", lat)
	}
	if lon < 80.0 || lon > 82.0 {
		t.Fatalf("centroid lon out of bounds: %v", lon)
	}
}

func TestDetermineStatus_LoRaAlwaysEmergency(t *testing.T) {
	if DetermineStatus(0.1, models.HazardFlood, true) != models.StatusEmergency {
		t.Fatalf("expected emergency status for lora regardless of confidence")
	}
}

func TestDetermineStatus_HighConfidenceTsunamiIsEmergency(t *testing.T) {
	if DetermineStatus(0.95, models.HazardTsunami, false) != models.StatusEmergency {
		t.Fatalf("expected emergency for high-confidence tsunami")
	}
}

func TestDetermineStatus_LowConfidenceIsReview(t *testing.T) {
	if DetermineStatus(0.1, models.HazardFlood, false) != models.StatusReview {
		t.Fatalf("expected review status for very low confidence")
	}
}

func TestFuse_PanicsNeverOnNonEmptyInput(t *testing.T) {
	reports := []models.Report{
		sampleReport(models.SourceCitizen, models.HazardFlood, 0.7, 0.7),
		sampleReport(models.SourceINCOIS, models.HazardFlood, 0.8, 0.9),
	}
	result := Fuse(reports)
	if result.Evidence.ReportCount != 2 {
		t.Fatalf("expected evidence report count 2, got %v", result.Evidence.ReportCount)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		t.Fatalf("confidence out of bounds: %v", result.Confidence)
	}
}

func TestShouldAlert_EmergencyAlwaysAlerts(t *testing.T) {
	result := Result{Status: models.StatusEmergency, Confidence: 0.1}
	if !ShouldAlert(result) {
		t.Fatalf("expected emergency status to always alert")
	}
}
