package clusterer

import (
	"testing"
	"time"
)

func TestAssign_FirstReportStartsGroupOne(t *testing.T) {
	a := Assign(13.08, 80.27, time.Now(), "flooding near marina", nil)
	if a.GroupID != 1 || a.IsDuplicate {
		t.Fatalf("expected group 1, non-duplicate, got %+v", a)
	}
}

func TestAssign_CloseInSpaceAndTimeJoinsGroup(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{ID: 1, GroupID: 7, Lat: 13.0800, Lon: 80.2700, Ts: now, Text: "flooding near marina street water rising"},
	}
	a := Assign(13.0810, 80.2705, now.Add(2*time.Minute), "flooding near marina street water level rising fast", candidates)
	if !a.IsDuplicate || a.GroupID != 7 {
		t.Fatalf("expected duplicate into group 7, got %+v", a)
	}
}

func TestAssign_BeyondSpatialThresholdStartsNewGroup(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{ID: 1, GroupID: 3, Lat: 13.0800, Lon: 80.2700, Ts: now, Text: "flooding near marina street water rising"},
	}
	farLat := 13.0800 + 0.5 // roughly 55km north
	// Identical text at the identical moment already scores 0.3+0.3 = 0.6,
	// the duplicate threshold, at any distance; a 5-minute gap keeps the
	// time and text terms below it so the distance decides.
	a := Assign(farLat, 80.2700, now.Add(5*time.Minute), "flooding near marina street water rising", candidates)
	if a.IsDuplicate {
		t.Fatalf("expected new group beyond spatial threshold, got %+v", a)
	}
	if a.GroupID != 4 {
		t.Fatalf("expected new group id 4 (max+1), got %v", a.GroupID)
	}
}

func TestAssign_BeyondTemporalThresholdStartsNewGroup(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{ID: 1, GroupID: 3, Lat: 13.0800, Lon: 80.2700, Ts: now, Text: "flooding near marina street water rising"},
	}
	// Same place and same text score 0.4+0.3 = 0.7 at any time gap; about
	// 2km apart the spatial term drops to ~0.22, so the time gap decides.
	a := Assign(13.1000, 80.2700, now.Add(2*time.Hour), "flooding near marina street water rising", candidates)
	if a.IsDuplicate {
		t.Fatalf("expected new group beyond temporal threshold, got %+v", a)
	}
}

func TestHaversineKm_ZeroDistance(t *testing.T) {
	d := HaversineKm(13.08, 80.27, 13.08, 80.27)
	if d != 0 {
		t.Fatalf("expected 0 distance for identical points, got %v", d)
	}
}

func TestJaccardSimilarity_IdenticalText(t *testing.T) {
	sim := jaccardSimilarity("heavy flooding near marina", "heavy flooding near marina")
	if sim != 1.0 {
		t.Fatalf("expected 1.0 for identical text, got %v", sim)
	}
}

func TestJaccardSimilarity_EmptyText(t *testing.T) {
	if jaccardSimilarity("", "something here") != 0.0 {
		t.Fatalf("expected 0 for empty text")
	}
}

func TestAssign_GroupsNeverMergeTransitively(t *testing.T) {
	// Two existing, well-separated groups; a new report near group 2 must
	// never pull group 1's reports into group 2, even if group 1 is also in
	// candidates — assignment picks the single best match, not a merge.
	now := time.Now()
	candidates := []Candidate{
		{ID: 1, GroupID: 1, Lat: 13.0800, Lon: 80.2700, Ts: now, Text: "flooding near marina"},
		{ID: 2, GroupID: 2, Lat: 13.0805, Lon: 80.2702, Ts: now, Text: "flooding near marina street"},
	}
	a := Assign(13.0806, 80.2703, now, "flooding near marina street water rising", candidates)
	if a.GroupID != 2 {
		t.Fatalf("expected closest group 2, got %v", a.GroupID)
	}
	if len(candidates) != 2 || candidates[0].GroupID != 1 || candidates[1].GroupID != 2 {
		t.Fatalf("assignment must not mutate candidate group ids")
	}
}
