// Package fusion turns a group of clustered reports into one hazard event:
// a consensus hazard kind, a confidence score with diminishing returns on
// report volume, a weighted severity and centroid, and a lifecycle status.
// This is the largest component in the engine — the three-stage confidence
// model (per-source volume factor, cross-source diversity multiplier, media
// evidence multiplier) is the spec's central piece of domain logic.
//
// Grounded on original_source/backend/services/fusion.py for every
// formula and threshold below; Go idiom (typed constant tables, one
// pure Fuse entry point assembling smaller pure stage functions) follows
// internal/heuristics/llr_engine.go's layered-scoring style in the teacher.
package fusion

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/oceanguard/hazard-fusion/pkg/models"
)

var sourceWeights = map[models.SourceKind]float64{
	models.SourceINCOIS:  0.9,
	models.SourceLoRa:    0.95,
	models.SourceCitizen: 0.6,
	models.SourceSocial:  0.4,
}

func sourceWeight(source models.SourceKind) float64 {
	if w, ok := sourceWeights[source]; ok {
		return w
	}
	return 0.3
}

const (
	thresholdAutoAlert      = 0.85
	thresholdEmergency      = 0.9
	thresholdReviewRequired = 0.3

	// maxUniqueDescriptions bounds the evidence blob's UniqueDescriptions
	// list to the first 5 distinct report texts, matching dedupe.py's
	// unique_texts[:5].
	maxUniqueDescriptions = 5
)

var hazardPriorities = map[models.HazardKind]float64{
	models.HazardEmergency:  1.0,
	models.HazardTsunami:    0.95,
	models.HazardEarthquake: 0.9,
	models.HazardLandslide:  0.85,
	models.HazardFlood:      0.8,
	models.HazardTides:      0.7,
	models.HazardUnknown:    0.3,
}

func hazardPriority(kind models.HazardKind) float64 {
	if p, ok := hazardPriorities[kind]; ok {
		return p
	}
	return 0.3
}

// Result is a complete fusion outcome for one group of reports.
type Result struct {
	Kind          models.HazardKind
	Confidence    float64
	Severity      int
	Status        models.EventStatus
	CentroidLat   float64
	CentroidLon   float64
	Evidence      models.EvidenceBlob
	PriorityScore float64
}

// reportMediaConfidence applies the per-report media-verification boost
// before the confidence is grouped and averaged by source.
func reportMediaConfidence(r models.Report) float64 {
	base := r.NLPConf * r.Credibility
	switch {
	case r.HasMedia && r.MediaVerified:
		return math.Min(0.95, base+0.4)
	case r.HasMedia:
		return math.Min(0.7, base+0.15)
	default:
		return base
	}
}

// volumeFactor models diminishing returns: each additional report of the
// same source contributes less to confidence than the last.
func volumeFactor(volume int, source models.SourceKind) float64 {
	if volume <= 0 {
		return 0.0
	}
	v := float64(volume)

	switch source {
	case models.SourceINCOIS, models.SourceLoRa:
		return math.Min(1.0, 0.8+0.1*math.Log10(v+1))
	case models.SourceCitizen:
		base := 0.25
		growth := 0.25 * math.Log10(v+1)
		bonus := math.Min(0.45, 0.1*math.Sqrt(v/10))
		return math.Min(0.95, base+growth+bonus)
	case models.SourceSocial:
		base := 0.15
		growth := 0.2 * math.Log10(v+1)
		bonus := math.Min(0.35, 0.08*math.Sqrt(v/5))
		return math.Min(0.8, base+growth+bonus)
	default:
		base := 0.1
		growth := 0.15 * math.Log10(v+1)
		return math.Min(0.5, base+growth)
	}
}

// sourceDiversityBoost rewards corroboration across distinct source types,
// with bonus combos for high-value source pairs (official + citizen,
// official + emergency device, emergency device + citizen).
func sourceDiversityBoost(sources map[models.SourceKind]bool) float64 {
	n := len(sources)
	var boost float64
	switch {
	case n <= 1:
		return 1.0
	case n == 2:
		boost = 1.5
	case n == 3:
		boost = 2.0
	default:
		boost = 2.5
	}

	if sources[models.SourceINCOIS] {
		if sources[models.SourceCitizen] {
			boost += 0.3
		}
		if sources[models.SourceLoRa] {
			boost += 0.4
		}
	}
	if sources[models.SourceLoRa] && sources[models.SourceCitizen] {
		boost += 0.2
	}

	return math.Min(3.0, boost)
}

func mediaEvidenceBoost(verifiedMediaCount, totalMediaCount int) float64 {
	if totalMediaCount == 0 {
		return 1.0
	}

	baseMediaBoost := 1.2
	verificationRatio := float64(verifiedMediaCount) / float64(totalMediaCount)
	verificationBoost := 1.0 + verificationRatio*0.5

	volumeBoost := 1.0
	switch {
	case verifiedMediaCount >= 3:
		volumeBoost = 1.3
	case verifiedMediaCount >= 2:
		volumeBoost = 1.2
	}

	return math.Min(2.5, baseMediaBoost*verificationBoost*volumeBoost)
}

// Confidence implements the three-stage confidence model of §4.4: per-source
// volume factors combined by source weight, then a cross-source diversity
// multiplier, then a media-evidence multiplier — each stage capped.
func Confidence(reports []models.Report) float64 {
	if len(reports) == 0 {
		return 0.0
	}

	sourceConfidences := make(map[models.SourceKind][]float64)
	verifiedMediaCount, totalMediaCount := 0, 0

	for _, r := range reports {
		if r.HasMedia {
			totalMediaCount++
			if r.MediaVerified {
				verifiedMediaCount++
			}
		}
		sourceConfidences[r.Source] = append(sourceConfidences[r.Source], reportMediaConfidence(r))
	}

	var totalConfidence, totalWeight float64
	for source, confidences := range sourceConfidences {
		weight := sourceWeight(source)

		var sum float64
		for _, c := range confidences {
			sum += c
		}
		avgConfidence := sum / float64(len(confidences))

		vf := volumeFactor(len(confidences), source)
		totalConfidence += avgConfidence * vf * weight
		totalWeight += weight
	}

	baseConfidence := 0.0
	if totalWeight > 0 {
		baseConfidence = totalConfidence / totalWeight
	}

	uniqueSources := make(map[models.SourceKind]bool, len(sourceConfidences))
	for s := range sourceConfidences {
		uniqueSources[s] = true
	}

	diversity := sourceDiversityBoost(uniqueSources)
	media := mediaEvidenceBoost(verifiedMediaCount, totalMediaCount)

	maxConfidence := 0.95
	if verifiedMediaCount > 0 {
		maxConfidence = 0.98
	}

	return math.Min(maxConfidence, baseConfidence*diversity*media)
}

// ConsensusKind implements weighted voting for the group's hazard kind:
// vote weight = source reliability x nlp confidence x credibility.
func ConsensusKind(reports []models.Report) models.HazardKind {
	if len(reports) == 0 {
		return models.HazardUnknown
	}

	votes := make(map[models.HazardKind]float64)
	for _, r := range reports {
		weight := sourceWeight(r.Source) * r.NLPConf * r.Credibility
		votes[r.NLPKind] += weight
	}

	best := models.HazardUnknown
	bestVote := -1.0
	// Iterate priority-ordered candidates so ties break toward the
	// higher-priority kind (priorityOrder below): deterministic, not
	// map-iteration order.
	for _, kind := range priorityOrder {
		if v, ok := votes[kind]; ok && v > bestVote {
			bestVote = v
			best = kind
		}
	}
	return best
}

var priorityOrder = []models.HazardKind{
	models.HazardEmergency,
	models.HazardTsunami,
	models.HazardEarthquake,
	models.HazardLandslide,
	models.HazardFlood,
	models.HazardTides,
	models.HazardUnknown,
}

// WeightedSeverity implements §4.4's weighted-average severity, rounded and
// clamped to [1,5].
func WeightedSeverity(reports []models.Report) int {
	if len(reports) == 0 {
		return 1
	}

	var weightedSum, totalWeight float64
	for _, r := range reports {
		baseSeverity := 3.0
		severity := math.Min(baseSeverity+float64(r.SeverityBoost), 5)

		weight := sourceWeight(r.Source) * r.Credibility
		weightedSum += severity * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 1
	}

	avg := weightedSum / totalWeight
	rounded := int(math.Round(avg))
	if rounded < 1 {
		rounded = 1
	}
	if rounded > 5 {
		rounded = 5
	}
	return rounded
}

// Centroid implements §4.4's credibility/source-weighted centroid, falling
// back to a plain average if every weight is zero.
func Centroid(reports []models.Report) (lat, lon float64) {
	if len(reports) == 0 {
		return 0, 0
	}

	var weightedLat, weightedLon, totalWeight float64
	for _, r := range reports {
		weight := sourceWeight(r.Source) * r.Credibility
		weightedLat += r.Lat * weight
		weightedLon += r.Lon * weight
		totalWeight += weight
	}

	if totalWeight > 0 {
		return weightedLat / totalWeight, weightedLon / totalWeight
	}

	var sumLat, sumLon float64
	for _, r := range reports {
		sumLat += r.Lat
		sumLon += r.Lon
	}
	n := float64(len(reports))
	return sumLat / n, sumLon / n
}

// DetermineStatus implements the lifecycle state machine of §4.4. LoRa
// SOS and the emergency hazard kind always win regardless of confidence.
func DetermineStatus(confidence float64, kind models.HazardKind, hasLoRa bool) models.EventStatus {
	if hasLoRa || kind == models.HazardEmergency {
		return models.StatusEmergency
	}

	if confidence >= thresholdEmergency {
		if kind == models.HazardTsunami || kind == models.HazardEarthquake {
			return models.StatusEmergency
		}
		return models.StatusConfirmed
	}

	if confidence >= thresholdAutoAlert {
		return models.StatusConfirmed
	}

	if confidence >= thresholdReviewRequired {
		return models.StatusPending
	}

	return models.StatusReview
}

// PriorityScore combines hazard-kind priority, confidence, and normalized
// severity into a single ranking score in [0,1].
func PriorityScore(kind models.HazardKind, confidence float64, severity int) float64 {
	severityFactor := float64(severity) / 5.0
	priority := hazardPriority(kind) * confidence * severityFactor
	return math.Min(1.0, priority)
}

// BuildEvidence assembles the structured evidence blob stored alongside a
// hazard event; it never needs a successful JSON round-trip to be useful
// to a caller that only wants the struct.
func BuildEvidence(reports []models.Report) models.EvidenceBlob {
	evidence := models.EvidenceBlob{
		ReportCount:  len(reports),
		SourceCounts: make(map[string]int),
	}

	seenText := make(map[string]bool)
	seenKeyword := make(map[string]bool)

	for _, r := range reports {
		evidence.SourceCounts[string(r.Source)]++
		evidence.NLPConfidences = append(evidence.NLPConfidences, r.NLPConf)
		evidence.CredibilityScores = append(evidence.CredibilityScores, r.Credibility)
		evidence.ReportIDs = append(evidence.ReportIDs, r.ID)

		if r.Ts.IsZero() {
			continue
		}
		if evidence.EarliestTimestamp.IsZero() || r.Ts.Before(evidence.EarliestTimestamp) {
			evidence.EarliestTimestamp = r.Ts
		}
		if r.Ts.After(evidence.LatestTimestamp) {
			evidence.LatestTimestamp = r.Ts
		}

		if r.Text != "" && !seenText[r.Text] && len(evidence.UniqueDescriptions) < maxUniqueDescriptions {
			seenText[r.Text] = true
			evidence.UniqueDescriptions = append(evidence.UniqueDescriptions, r.Text)
		}
		for _, kw := range r.Keywords {
			if !seenKeyword[kw] {
				seenKeyword[kw] = true
				evidence.Keywords = append(evidence.Keywords, kw)
			}
		}
	}

	return evidence
}

// EvidenceJSON marshals the blob for storage in HazardEvent.Evidence.
func EvidenceJSON(blob models.EvidenceBlob) (string, error) {
	b, err := json.Marshal(blob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Fuse is the main entry point: it builds a complete fusion Result from a
// non-empty slice of clustered reports. The caller is responsible for
// honoring HazardEvent.Pinned() — Fuse always recomputes, it never checks
// a prior event's validation state.
func Fuse(reports []models.Report) Result {
	hasLoRa := false
	for _, r := range reports {
		if r.Source == models.SourceLoRa {
			hasLoRa = true
			break
		}
	}

	kind := ConsensusKind(reports)
	confidence := Confidence(reports)
	severity := WeightedSeverity(reports)
	centroidLat, centroidLon := Centroid(reports)
	status := DetermineStatus(confidence, kind, hasLoRa)
	priority := PriorityScore(kind, confidence, severity)
	evidence := BuildEvidence(reports)

	return Result{
		Kind:          kind,
		Confidence:    confidence,
		Severity:      severity,
		Status:        status,
		CentroidLat:   centroidLat,
		CentroidLon:   centroidLon,
		Evidence:      evidence,
		PriorityScore: priority,
	}
}

// ShouldAlert reports whether an automatic alert should fire for this
// fusion result, per §4.4.
func ShouldAlert(result Result) bool {
	return result.Confidence >= thresholdAutoAlert || result.Status == models.StatusEmergency
}

// Explain produces a short human-readable summary of a fusion result, used
// in admin tooling and logs.
func Explain(result Result, reportCount int) string {
	var parts []string
	parts = append(parts, pluralReports(reportCount))

	switch {
	case result.Confidence >= 0.8:
		parts = append(parts, "high confidence")
	case result.Confidence >= 0.6:
		parts = append(parts, "medium confidence")
	default:
		parts = append(parts, "low confidence")
	}

	if result.Kind != models.HazardUnknown {
		parts = append(parts, "classified as "+string(result.Kind))
	}

	parts = append(parts, severityText(result.Severity)+" severity")

	switch result.Status {
	case models.StatusEmergency:
		parts = append(parts, "EMERGENCY status")
	case models.StatusConfirmed:
		parts = append(parts, "auto-confirmed")
	default:
		parts = append(parts, "requires review")
	}

	out := parts[0]
	for _, p := range parts[1:] {
		out += "; " + p
	}
	return out
}

func pluralReports(n int) string {
	if n == 1 {
		return "fused from 1 report"
	}
	return fmt.Sprintf("fused from %d reports", n)
}

func severityText(s int) string {
	switch s {
	case 1:
		return "low"
	case 2:
		return "low-medium"
	case 3:
		return "medium"
	case 4:
		return "high"
	case 5:
		return "critical"
	default:
		return "unknown"
	}
}

