package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/oceanguard/hazard-fusion/internal/broadcaster"
	"github.com/oceanguard/hazard-fusion/pkg/models"
)

func mkReport(source models.SourceKind, text string, lat, lon float64, ts time.Time) *models.Report {
	return &models.Report{
		Source: source,
		Text:   text,
		Lat:    lat,
		Lon:    lon,
		Ts:     ts,
	}
}

func TestProcessReport_FirstReportBecomesOwnGroupAndEvent(t *testing.T) {
	st := newFakeStore()
	bc := broadcaster.New()
	p := New(st, bc, nil, 2)

	r := mkReport(models.SourceCitizen, "heavy flooding near the market, water rising fast", 13.08, 80.27, time.Now())
	id, err := st.SaveReport(context.Background(), r)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	if err := p.ProcessReport(context.Background(), id); err != nil {
		t.Fatalf("ProcessReport: %v", err)
	}

	stored, _ := st.GetReport(context.Background(), id)
	if !stored.Processed {
		t.Fatalf("expected report to be marked processed")
	}
	if stored.GroupID == 0 {
		t.Fatalf("expected a non-zero group id to be assigned")
	}

	event, _ := st.GetHazardEventByGroup(context.Background(), stored.GroupID)
	if event == nil {
		t.Fatalf("expected a hazard event to be fused for the new group")
	}
}

func TestProcessReport_IsIdempotentOnAlreadyProcessedReport(t *testing.T) {
	st := newFakeStore()
	bc := broadcaster.New()
	p := New(st, bc, nil, 2)

	r := mkReport(models.SourceCitizen, "tsunami warning sirens going off on the beach", 13.0, 80.2, time.Now())
	id, _ := st.SaveReport(context.Background(), r)

	if err := p.ProcessReport(context.Background(), id); err != nil {
		t.Fatalf("first ProcessReport: %v", err)
	}
	firstGroup, _ := st.GetReport(context.Background(), id)

	if err := p.ProcessReport(context.Background(), id); err != nil {
		t.Fatalf("second ProcessReport: %v", err)
	}
	secondGroup, _ := st.GetReport(context.Background(), id)

	if firstGroup.GroupID != secondGroup.GroupID {
		t.Fatalf("reprocessing an already-processed report changed its group: %d -> %d", firstGroup.GroupID, secondGroup.GroupID)
	}
}

func TestProcessReport_LoRaReportGetsSingletonNegativeGroup(t *testing.T) {
	st := newFakeStore()
	bc := broadcaster.New()
	p := New(st, bc, nil, 2)

	r := mkReport(models.SourceLoRa, "", 13.0, 80.2, time.Now())
	id, _ := st.SaveReport(context.Background(), r)

	if err := p.ProcessReport(context.Background(), id); err != nil {
		t.Fatalf("ProcessReport: %v", err)
	}

	stored, _ := st.GetReport(context.Background(), id)
	if stored.GroupID != -id {
		t.Fatalf("expected singleton group -%d, got %d", id, stored.GroupID)
	}
	if stored.NLPKind != models.HazardEmergency {
		t.Fatalf("expected emergency classification, got %s", stored.NLPKind)
	}

	event, _ := st.GetHazardEventByGroup(context.Background(), stored.GroupID)
	if event == nil || event.Status != models.StatusEmergency {
		t.Fatalf("expected an emergency-status event for the LoRa singleton group")
	}
	if event.Confidence != 0.99 {
		t.Fatalf("expected emergency event confidence 0.99 constructed directly, got %f", event.Confidence)
	}
	if event.Severity != 5 {
		t.Fatalf("expected emergency event severity 5, got %d", event.Severity)
	}
}

func TestProcessReport_SecondCorroboratingReportJoinsGroupAndRaisesConfidence(t *testing.T) {
	st := newFakeStore()
	bc := broadcaster.New()
	p := New(st, bc, nil, 2)

	now := time.Now()
	r1 := mkReport(models.SourceCitizen, "flooding reported near the harbor, streets underwater", 13.05, 80.28, now)
	id1, _ := st.SaveReport(context.Background(), r1)
	if err := p.ProcessReport(context.Background(), id1); err != nil {
		t.Fatalf("ProcessReport r1: %v", err)
	}
	first, _ := st.GetReport(context.Background(), id1)
	firstEvent, _ := st.GetHazardEventByGroup(context.Background(), first.GroupID)

	r2 := mkReport(models.SourceSocial, "flooding near the harbor area, water everywhere on the street", 13.051, 80.281, now.Add(2*time.Minute))
	id2, _ := st.SaveReport(context.Background(), r2)
	if err := p.ProcessReport(context.Background(), id2); err != nil {
		t.Fatalf("ProcessReport r2: %v", err)
	}
	second, _ := st.GetReport(context.Background(), id2)

	if second.GroupID != first.GroupID {
		t.Fatalf("expected corroborating report to join group %d, got %d", first.GroupID, second.GroupID)
	}

	finalEvent, _ := st.GetHazardEventByGroup(context.Background(), first.GroupID)
	if finalEvent.Confidence < firstEvent.Confidence {
		t.Fatalf("expected confidence to rise with a second corroborating source: %f -> %f", firstEvent.Confidence, finalEvent.Confidence)
	}
}

func TestProcessReport_UnknownReportIDReturnsError(t *testing.T) {
	st := newFakeStore()
	bc := broadcaster.New()
	p := New(st, bc, nil, 2)

	if err := p.ProcessReport(context.Background(), 999); err == nil {
		t.Fatalf("expected an error processing a nonexistent report id")
	}
}

func TestEnqueue_NeverBlocksOnFullQueue(t *testing.T) {
	st := newFakeStore()
	bc := broadcaster.New()
	p := New(st, bc, nil, 1)
	p.queue = make(chan int64, 1)

	p.Enqueue(1)
	done := make(chan struct{})
	go func() {
		p.Enqueue(2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Enqueue blocked on a full queue")
	}
}
