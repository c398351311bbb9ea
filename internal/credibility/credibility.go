// Package credibility scores a single report's trustworthiness in [0,1]
// from its metadata alone — source type, text quality, geo precision,
// recency, and media presence. It has no side effects and keeps no
// reputation state (past_accuracy is reserved, §4.2).
//
// Grounded on original_source/backend/services/credibility.py for the
// feature/weight table; Go idiom follows the teacher's scoring-result shape
// in internal/heuristics/privacy_score.go (a Result struct carrying a total
// score, a per-feature breakdown, and a human explanation string).
package credibility

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oceanguard/hazard-fusion/pkg/models"
)

// Result is the total scorer output.
type Result struct {
	Score       float64
	Features    map[string]float64
	Explanation string
}

// featureWeights must sum to 1.0.
var featureWeights = map[string]float64{
	"source_reliability":   0.40,
	"media_presence":       0.15,
	"geo_accuracy":         0.15,
	"text_quality":         0.15,
	"temporal_consistency": 0.10,
	"past_accuracy":        0.05,
}

var sourceWeights = map[models.SourceKind]float64{
	models.SourceINCOIS:  1.0,
	models.SourceLoRa:    0.95,
	models.SourceCitizen: 0.6,
	models.SourceSocial:  0.4,
}

func scoreSourceReliability(source models.SourceKind) float64 {
	if w, ok := sourceWeights[source]; ok {
		return w
	}
	return 0.3
}

func scoreMediaPresence(mediaPaths []string) float64 {
	for _, p := range mediaPaths {
		if strings.TrimSpace(p) != "" {
			return 0.8
		}
	}
	return 0.2
}

// decimalPrecision returns the number of digits after the decimal point of
// a float's default string form.
func decimalPrecision(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return 0
	}
	return len(s) - idx - 1
}

func scoreGeoAccuracy(lat, lon float64, gpsAccuracyM *float64) float64 {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0.0
	}

	latPrecision := decimalPrecision(lat)
	lonPrecision := decimalPrecision(lon)

	if latPrecision > 8 || lonPrecision > 8 {
		return 0.3
	}
	if latPrecision < 2 || lonPrecision < 2 {
		return 0.4
	}

	if gpsAccuracyM != nil {
		switch {
		case *gpsAccuracyM <= 20:
			return 1.0
		case *gpsAccuracyM <= 50:
			return 0.8
		case *gpsAccuracyM <= 100:
			return 0.6
		default:
			return 0.3
		}
	}

	return 0.7
}

var (
	multiBangRE  = regexp.MustCompile(`!{3,}`)
	allCapsRunRE = regexp.MustCompile(`[A-Z]{10,}`)

	numberRE      = regexp.MustCompile(`\b\d+\b`)
	timeWordRE    = regexp.MustCompile(`\b(morning|evening|afternoon|night|am|pm)\b`)
	locationRE    = regexp.MustCompile(`\b(near|at|in|around|beside)\b`)
	measurementRE = regexp.MustCompile(`\b(level|height|depth|speed)\b`)
)

func scoreTextQuality(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0.0
	}

	length := len(trimmed)
	words := strings.Fields(trimmed)
	wordCount := len(words)

	lengthScore := 0.0
	switch {
	case length > 500:
		lengthScore = 0.6
	case length >= 100:
		lengthScore = 0.9
	case length >= 50:
		lengthScore = 0.7
	case length >= 30:
		lengthScore = 0.5
	}

	unique := make(map[string]bool, wordCount)
	for _, w := range words {
		unique[strings.ToLower(w)] = true
	}
	divisor := wordCount
	if divisor == 0 {
		divisor = 1
	}
	diversity := float64(len(unique)) / float64(divisor)
	if diversity > 1.0 {
		diversity = 1.0
	}

	infoBonus := 0.0
	lowered := strings.ToLower(trimmed)
	for _, re := range []*regexp.Regexp{numberRE, timeWordRE, locationRE, measurementRE} {
		if re.MatchString(lowered) {
			infoBonus += 0.05
		}
	}

	// Go's regexp (RE2) has no backreferences, so a run of 5+ identical
	// characters and a word repeated back to back are found by scanning.
	charRun, doubledWord := false, false
	for _, r := range trimmed {
		charRun = charRun || strings.Contains(trimmed, strings.Repeat(string(r), 5))
	}
	for i := 1; i < len(words); i++ {
		doubledWord = doubledWord || words[i] == words[i-1]
	}
	spamPenalty := 0.0
	for _, hit := range []bool{charRun, doubledWord, multiBangRE.MatchString(trimmed), allCapsRunRE.MatchString(trimmed)} {
		if hit {
			spamPenalty += 0.10
		}
	}

	final := lengthScore*0.6 + diversity*0.4 + infoBonus - spamPenalty
	if final < 0 {
		final = 0
	}
	if final > 1 {
		final = 1
	}
	return final
}

func scoreTemporalConsistency(ts time.Time) float64 {
	if ts.IsZero() {
		return 0.5
	}
	now := time.Now().UTC()
	ts = ts.UTC()

	if ts.After(now) {
		return 0.1
	}

	diff := now.Sub(ts)
	switch {
	case diff <= time.Hour:
		return 1.0
	case diff <= 24*time.Hour:
		return 0.9
	case diff <= 7*24*time.Hour:
		return 0.7
	case diff <= 30*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

// scorePastAccuracy is reserved for a future reputation store; it returns
// a neutral score until one exists, per spec §4.2.
func scorePastAccuracy() float64 {
	return 0.5
}

// Score implements the §4.2 contract. gpsAccuracyM may be nil when the
// caller has no GPS-accuracy reading.
func Score(source models.SourceKind, text string, lat, lon float64, ts time.Time, mediaPaths []string, gpsAccuracyM *float64) Result {
	features := map[string]float64{
		"source_reliability":   scoreSourceReliability(source),
		"media_presence":       scoreMediaPresence(mediaPaths),
		"geo_accuracy":         scoreGeoAccuracy(lat, lon, gpsAccuracyM),
		"text_quality":         scoreTextQuality(text),
		"temporal_consistency": scoreTemporalConsistency(ts),
		"past_accuracy":        scorePastAccuracy(),
	}

	var totalScore, totalWeight float64
	for feature, score := range features {
		weight := featureWeights[feature]
		totalScore += score * weight
		totalWeight += weight
	}

	final := 0.0
	if totalWeight > 0 {
		final = totalScore / totalWeight
	}

	return Result{
		Score:       final,
		Features:    features,
		Explanation: explain(features),
	}
}

func explain(features map[string]float64) string {
	var parts []string

	switch {
	case features["source_reliability"] >= 0.8:
		parts = append(parts, "reliable source")
	case features["source_reliability"] <= 0.4:
		parts = append(parts, "unreliable source")
	}

	if features["media_presence"] >= 0.7 {
		parts = append(parts, "has media evidence")
	}

	switch {
	case features["geo_accuracy"] >= 0.8:
		parts = append(parts, "accurate location")
	case features["geo_accuracy"] <= 0.4:
		parts = append(parts, "poor location data")
	}

	switch {
	case features["text_quality"] >= 0.7:
		parts = append(parts, "detailed description")
	case features["text_quality"] <= 0.4:
		parts = append(parts, "poor description quality")
	}

	switch {
	case features["temporal_consistency"] >= 0.8:
		parts = append(parts, "recent report")
	case features["temporal_consistency"] <= 0.4:
		parts = append(parts, "outdated report")
	}

	if len(parts) == 0 {
		return "average credibility"
	}
	return strings.Join(parts, "; ")
}
