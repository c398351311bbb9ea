// Package classifier maps free text, source, and media flags to a hazard
// kind, confidence, severity boost, and the keywords that drove the call.
// It is keyword-based by design (spec Non-goal: no learned classifier) —
// a closed set of curated multilingual keyword tables scored and matched
// against normalized text, the same shape as the teacher's evidence-edge
// scoring in internal/heuristics/llr_engine.go: typed constant tables, small
// pure functions, no hidden state.
//
// Grounded on original_source/backend/services/nlp.py for the keyword
// tables and the progressive-confidence/media-boost algorithm.
package classifier

import (
	"regexp"
	"strings"

	"github.com/oceanguard/hazard-fusion/pkg/models"
)

// Result is the classifier's total, side-effect-free output. classify never
// throws: empty or malformed input degrades to (unknown, low confidence),
// never an error.
type Result struct {
	Kind          models.HazardKind
	Confidence    float64
	SeverityBoost int
	Keywords      []string
}

// hazardKeywords is ordered; ties in keyword score are broken by this
// listing order (flood > tsunami > tides > earthquake > landslide), as
// documented by the spec. Do not reorder without updating callers that
// depend on the tie-break.
var hazardKeywords = []struct {
	kind     models.HazardKind
	keywords []string
}{
	{models.HazardFlood, []string{
		"flood", "flooding", "water level", "overflow", "inundation", "waterlogged",
		"submerg", "drain", "sewage", "rain", "monsoon", "deluge", "torrent",
		"heavy rain", "downpour", "cloudburst", "river overflow", "flash flood",
		"urban flooding", "street flooding", "water rising", "high water",
		"baarish", "paani", "sel", "jal", "baadh",
	}},
	{models.HazardTsunami, []string{
		"tsunami", "tidal wave", "sea surge", "ocean wave", "seismic wave",
		"underwater earthquake", "sea level rise", "giant wave", "wall of water",
		"abnormal wave", "huge wave", "tidal surge", "sea wall", "marine surge",
		"oceanic wave", "mega wave", "killer wave", "harbor wave",
		"sunami", "samudri lahar", "samudri toofan",
	}},
	{models.HazardTides, []string{
		"high tide", "low tide", "tidal surge", "tidal flooding", "abnormal tide",
		"spring tide", "neap tide", "tide level", "tidal bore", "tidal wave",
		"unusual tide", "extreme tide", "king tide", "storm tide", "tidal current",
		"tide height", "tidal inundation", "coastal surge", "tidal overflow",
		"jowar", "bhata", "samudri lehren",
	}},
	{models.HazardEarthquake, []string{
		"earthquake", "tremor", "quake", "seismic", "ground shaking", "earth tremor",
		"shaking", "vibration", "ground movement", "fault", "epicenter", "aftershock",
		"richter", "magnitude", "building shake", "ground shake", "seismic activity",
		"tectonic", "trembling", "earth movement", "foreshock", "mainshock",
		"bhukamp", "zameen hilna", "kampan", "dharti hilna",
	}},
	{models.HazardLandslide, []string{
		"landslide", "landslip", "mudslide", "rockslide", "slope failure",
		"mass wasting", "debris flow", "rock fall", "cliff collapse", "soil erosion",
		"hill collapse", "mountain slide", "embankment failure", "slope instability",
		"avalanche", "mudflow", "earth movement", "ground collapse", "subsidence",
		"bhooskalan", "pahad girna", "mitti ka khisakna", "zameen dhansna",
	}},
}

var severityKeywords = map[string][]string{
	"high":   {"emergency", "urgent", "critical", "severe", "dangerous", "trapped", "injured", "casualties", "death", "rescue", "evacuate", "siren"},
	"medium": {"warning", "alert", "caution", "moderate", "rising", "increasing"},
}

var stopwords = buildStopwordSet(
	[]string{"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by", "is", "are", "was", "were", "be", "been", "have", "has", "had", "do", "does", "did", "will", "would", "could", "should"},
	[]string{"aur", "ka", "ki", "ke", "mein", "se", "par", "ko", "hai", "hain", "tha", "thi"},
)

func buildStopwordSet(lists ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, list := range lists {
		for _, w := range list {
			set[w] = true
		}
	}
	return set
}

var punctuationRE = regexp.MustCompile(`[^\w\s\-]`)
var whitespaceRE = regexp.MustCompile(`\s+`)

// preprocess lowercases, strips punctuation (keeping word boundaries and
// hyphens), drops tokens <= 2 chars, and removes stopwords.
func preprocess(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	lowered := strings.ToLower(text)
	cleaned := punctuationRE.ReplaceAllString(lowered, " ")
	cleaned = whitespaceRE.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	words := strings.Split(cleaned, " ")
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 || stopwords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// keywordScore returns 2*(occurrences) for a single keyword matched as a
// substring of the already-preprocessed text — exact occurrences dominate
// the score; a lone substring hit that duplicates an exact hit is never
// double counted, since strings.Count already reports every occurrence.
func keywordScore(text, keyword string) (score int, matched bool) {
	if keyword == "" {
		return 0, false
	}
	count := strings.Count(text, keyword)
	if count == 0 {
		return 0, false
	}
	return 2 * count, true
}

// extractHazardKind scores every kind's keyword list against the
// preprocessed text and returns the argmax, breaking ties by listing order.
func extractHazardKind(preprocessed string) (models.HazardKind, int, []string) {
	bestKind := models.HazardUnknown
	bestScore := 0
	var bestKeywords []string

	for _, entry := range hazardKeywords {
		score := 0
		var found []string
		for _, kw := range entry.keywords {
			s, matched := keywordScore(preprocessed, kw)
			if matched {
				score += s
				found = append(found, kw)
			}
		}
		if score > bestScore {
			bestScore = score
			bestKind = entry.kind
			bestKeywords = found
		}
	}
	return bestKind, bestScore, bestKeywords
}

func extractSeverityBoost(preprocessed string) int {
	boost := 0
	for _, kw := range severityKeywords["high"] {
		if strings.Contains(preprocessed, kw) {
			boost += 2
			break
		}
	}
	for _, kw := range severityKeywords["medium"] {
		if strings.Contains(preprocessed, kw) {
			boost++
			break
		}
	}
	if boost > 2 {
		boost = 2
	}
	return boost
}

// sourceBand clamps a scaled confidence into the per-source band described
// in spec §4.1 step 4. The clamp is deliberate: a single low-trust report
// can never be confidently actioned on its own, only through fusion.
func sourceBand(source models.SourceKind, baseConfidence float64) float64 {
	switch source {
	case models.SourceCitizen:
		return clamp(baseConfidence*0.25, 0.08, 0.35)
	case models.SourceSocial:
		return clamp(baseConfidence*0.20, 0.08, 0.35)
	case models.SourceINCOIS:
		return clamp(baseConfidence*0.80, 0.50, 0.85)
	case models.SourceLoRa:
		return clamp(baseConfidence*0.95, 0.29, 0.95)
	default:
		return clamp(baseConfidence*0.25, 0.08, 0.35)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyMediaBoost implements spec §4.1 step 5.
func applyMediaBoost(confidence float64, hasMedia, mediaVerified bool) float64 {
	switch {
	case hasMedia && mediaVerified:
		return clamp(confidence+0.60, 0, 0.95)
	case hasMedia && !mediaVerified:
		return clamp(confidence+0.15, 0, 0.70)
	default:
		return confidence
	}
}

// Classify implements the §4.1 contract. It never errors and never panics
// on malformed input.
func Classify(text string, source models.SourceKind, hasMedia, mediaVerified bool) Result {
	if source == models.SourceLoRa {
		// Emergency-beacon override, spec §4.1 step 7: the emergency
		// channel always wins regardless of text content.
		return Result{
			Kind:          models.HazardEmergency,
			Confidence:    0.99,
			SeverityBoost: 2,
			Keywords:      []string{"sos", "emergency"},
		}
	}

	if strings.TrimSpace(text) == "" {
		return Result{Kind: models.HazardUnknown, Confidence: 0.1}
	}

	preprocessed := preprocess(text)
	kind, score, keywords := extractHazardKind(preprocessed)

	var baseConfidence float64
	if score == 0 {
		kind = models.HazardUnknown
		baseConfidence = 0.3
	} else {
		baseConfidence = clamp(0.4+0.05*float64(score), 0, 0.7)
	}

	confidence := sourceBand(source, baseConfidence)
	confidence = applyMediaBoost(confidence, hasMedia, mediaVerified)

	severityBoost := extractSeverityBoost(preprocessed)

	return Result{
		Kind:          kind,
		Confidence:    confidence,
		SeverityBoost: severityBoost,
		Keywords:      keywords,
	}
}
