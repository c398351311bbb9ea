// Package clusterer assigns each new report to a group_id by spatio-
// temporal-lexical similarity against already-clustered reports. Groups are
// best-match assignments, never unions: once a report lands in a group it
// stays there, and two existing groups are never merged after the fact.
// This deliberately diverges from the teacher's union-find clustering in
// internal/heuristics/cluster_engine.go, which merges transitively — that
// shape fits transaction-graph clustering but would let an unrelated report
// silently pull two established hazard groups together here. The small
// pure-function style (distance/similarity helpers feeding one combiner)
// follows that file's structure even though the merge strategy does not.
//
// Grounded on original_source/backend/services/dedupe.py for the
// thresholds, weights, and best-match assignment algorithm.
package clusterer

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

const (
	spatialThresholdKm    = 5.0
	temporalThresholdMins = 30.0
	combinedThreshold     = 0.6

	spatialWeight  = 0.4
	temporalWeight = 0.3
	textualWeight  = 0.3

	earthRadiusKm = 6371.0
)

// Candidate is the minimal shape clustering needs from an already-grouped
// report; callers (the pipeline) project their store rows into this.
type Candidate struct {
	ID      int64
	GroupID int64
	Lat     float64
	Lon     float64
	Ts      time.Time
	Text    string
}

// Assignment is the clustering outcome for one new report.
type Assignment struct {
	GroupID         int64
	IsDuplicate     bool
	SimilarityScore float64
	MatchedReports  []int64
	Explanation     string
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad

	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusKm * c
}

func spatialSimilarity(lat1, lon1, lat2, lon2 float64) float64 {
	distanceKm := HaversineKm(lat1, lon1, lat2, lon2)
	if distanceKm > spatialThresholdKm {
		return 0.0
	}
	sim := 1.0 - (distanceKm / spatialThresholdKm)
	return math.Max(0.0, sim)
}

func temporalSimilarity(t1, t2 time.Time) float64 {
	if t1.IsZero() || t2.IsZero() {
		return 0.5
	}
	diffMinutes := math.Abs(t2.Sub(t1).Minutes())
	if diffMinutes > temporalThresholdMins {
		return 0.0
	}
	sim := 1.0 - (diffMinutes / temporalThresholdMins)
	return math.Max(0.0, sim)
}

var tokenizeRE = regexp.MustCompile(`[^\w\s]`)

// tokenize mirrors the classifier's word-splitting but keeps no stopword
// filter — dedupe only needs overlap, not semantic weight per token.
func tokenize(text string) []string {
	cleaned := tokenizeRE.ReplaceAllString(strings.ToLower(text), "")
	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func jaccardSimilarity(text1, text2 string) float64 {
	if strings.TrimSpace(text1) == "" || strings.TrimSpace(text2) == "" {
		return 0.0
	}

	set1 := toSet(tokenize(text1))
	set2 := toSet(tokenize(text2))

	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range set1 {
		if set2[tok] {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func combinedSimilarity(aLat, aLon float64, aTs time.Time, aText string, b Candidate) (score, spatial, temporal, textual float64) {
	spatial = spatialSimilarity(aLat, aLon, b.Lat, b.Lon)
	temporal = temporalSimilarity(aTs, b.Ts)
	textual = jaccardSimilarity(aText, b.Text)
	score = spatial*spatialWeight + temporal*temporalWeight + textual*textualWeight
	return
}

// Assign finds the best-matching existing group for a new report among
// candidates (already-processed reports in the same rough spatial/temporal
// neighborhood, as selected by the caller). An empty candidate list always
// starts a brand-new group.
func Assign(lat, lon float64, ts time.Time, text string, candidates []Candidate) Assignment {
	if len(candidates) == 0 {
		return Assignment{
			GroupID:     1,
			IsDuplicate: false,
			Explanation: "first report in database",
		}
	}

	var bestMatch *Candidate
	bestScore := 0.0
	var matchedReports []int64

	for i := range candidates {
		c := candidates[i]
		score, _, _, _ := combinedSimilarity(lat, lon, ts, text, c)
		if score >= combinedThreshold {
			matchedReports = append(matchedReports, c.ID)
			if score > bestScore {
				bestScore = score
				bestMatch = &candidates[i]
			}
		}
	}

	if bestMatch != nil {
		groupID := bestMatch.GroupID
		if groupID == 0 {
			groupID = bestMatch.ID
		}
		_, spatial, temporal, textual := combinedSimilarity(lat, lon, ts, text, *bestMatch)
		return Assignment{
			GroupID:         groupID,
			IsDuplicate:     true,
			SimilarityScore: bestScore,
			MatchedReports:  matchedReports,
			Explanation:     explainMatch(lat, lon, ts, *bestMatch, spatial, temporal, textual),
		}
	}

	maxGroupID := int64(0)
	for _, c := range candidates {
		gid := c.GroupID
		if gid == 0 {
			gid = c.ID
		}
		if gid > maxGroupID {
			maxGroupID = gid
		}
	}

	return Assignment{
		GroupID:     maxGroupID + 1,
		IsDuplicate: false,
		Explanation: "unique report - no duplicates found",
	}
}

func explainMatch(lat, lon float64, ts time.Time, match Candidate, spatial, temporal, textual float64) string {
	var parts []string
	if spatial > 0.7 {
		distance := HaversineKm(lat, lon, match.Lat, match.Lon)
		parts = append(parts, fmt.Sprintf("same location (%.1fkm apart)", distance))
	}
	if temporal > 0.7 {
		diffMinutes := math.Abs(ts.Sub(match.Ts).Minutes())
		parts = append(parts, fmt.Sprintf("similar time (%.0fmin apart)", diffMinutes))
	}
	if textual > 0.4 {
		parts = append(parts, fmt.Sprintf("similar description (%.2f similarity)", textual))
	}
	if len(parts) == 0 {
		return "matched existing report"
	}
	return strings.Join(parts, "; ")
}
