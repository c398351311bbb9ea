// Package pipeline orchestrates one report from ingestion to a fused
// hazard event: classify, score credibility, cluster against prior
// reports, persist the group assignment, then re-fuse the whole group and
// publish the result. A worker pool drains a bounded queue; a ticker-driven
// sweep retries any report that never finished processing.
//
// Grounded on original_source/backend/services/ingest.py's
// ProcessingPipeline for the step order and the progressive-refusion
// design (re-fusing the whole group on every new member, not just the new
// report). The worker-pool/ticker shape follows the teacher's
// internal/mempool/poller.go; the per-group serialization follows
// internal/api/ratelimit.go's sharded-map pattern (see group_lock.go).
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/oceanguard/hazard-fusion/internal/apperr"
	"github.com/oceanguard/hazard-fusion/internal/broadcaster"
	"github.com/oceanguard/hazard-fusion/internal/classifier"
	"github.com/oceanguard/hazard-fusion/internal/clusterer"
	"github.com/oceanguard/hazard-fusion/internal/credibility"
	"github.com/oceanguard/hazard-fusion/internal/fusion"
	"github.com/oceanguard/hazard-fusion/internal/store"
	"github.com/oceanguard/hazard-fusion/pkg/models"
)

const (
	defaultQueueSize = 512
	defaultWorkers   = 4
	sweepInterval    = 15 * time.Second
	sweepBatchSize   = 20
)

// Pipeline wires the classifier, credibility scorer, clusterer, and fusion
// engine to a Store and a Broadcaster.
type Pipeline struct {
	store       store.Store
	broadcaster *broadcaster.Broadcaster
	hub         *broadcaster.Hub
	locks       *groupLocks
	queue       chan int64
	workers     int
}

// New constructs a Pipeline. workers <= 0 falls back to defaultWorkers. hub
// may be nil, in which case the websocket transport simply never receives
// pipeline events (only the SSE broadcaster does).
func New(st store.Store, bc *broadcaster.Broadcaster, hub *broadcaster.Hub, workers int) *Pipeline {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Pipeline{
		store:       st,
		broadcaster: bc,
		hub:         hub,
		locks:       newGroupLocks(),
		queue:       make(chan int64, defaultQueueSize),
		workers:     workers,
	}
}

// publish fans a topic/data pair out through the SSE broadcaster and, if a
// websocket Hub was wired in, through it too — both transports carry the
// same events so a /ws client sees exactly what a /stream client sees.
func (p *Pipeline) publish(topic broadcaster.Topic, data interface{}) {
	p.broadcaster.Publish(topic, data)
	if p.hub == nil {
		return
	}
	if frame, err := broadcaster.Frame(topic, data); err == nil {
		p.hub.Broadcast(frame)
	}
}

// Start launches the worker pool and the sweep loop; it returns
// immediately, running both in background goroutines tied to ctx.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.runWorker(ctx)
	}
	go p.runSweep(ctx)
}

// Enqueue schedules a saved report for processing. It never blocks: a full
// queue drops the request silently, trusting the sweep loop to pick up the
// still-unprocessed report on its next tick.
func (p *Pipeline) Enqueue(reportID int64) {
	select {
	case p.queue <- reportID:
	default:
		log.Printf("pipeline: queue full, report %d deferred to sweep", reportID)
	}
}

func (p *Pipeline) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.queue:
			if err := p.ProcessReport(ctx, id); err != nil {
				log.Printf("pipeline: failed to process report %d: %v", id, err)
			}
		}
	}
}

func (p *Pipeline) runSweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reports, err := p.store.UnprocessedReports(ctx, sweepBatchSize)
			if err != nil {
				log.Printf("pipeline: sweep query failed: %v", err)
				continue
			}
			for _, r := range reports {
				p.Enqueue(r.ID)
			}
		}
	}
}

// ProcessReport runs the full per-report pipeline: classify, score, cluster,
// persist, then re-fuse the affected group. It is idempotent — a report
// already marked processed is a no-op, so a duplicate enqueue (worker race
// with the sweep) never double-processes it.
func (p *Pipeline) ProcessReport(ctx context.Context, reportID int64) error {
	report, err := p.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	if report.Processed {
		return nil
	}

	isEmergency := report.Source == models.SourceLoRa

	result := classifier.Classify(report.Text, report.Source, report.HasMedia, report.MediaVerified)
	report.NLPKind = result.Kind
	report.NLPConf = result.Confidence
	report.SeverityBoost = result.SeverityBoost
	report.Keywords = result.Keywords

	if isEmergency {
		// Emergency beacons skip clustering entirely: each starts its own
		// group, fused immediately on its own. Negative group ids keep
		// these groups apart from the ids the clusterer allocates for new
		// groups, which are always >= 1. A later non-beacon report that
		// matches the beacon report still joins its (negative) group.
		report.GroupID = -report.ID
	}

	credResult := credibility.Score(report.Source, report.Text, report.Lat, report.Lon, report.Ts, report.MediaPaths, report.GPSAccuracyM)
	report.Credibility = credResult.Score

	if !isEmergency {
		candidates, err := p.store.ReportsForDedup(ctx, report.ID)
		if err != nil {
			return err
		}
		assignment := clusterer.Assign(report.Lat, report.Lon, report.Ts, report.Text, toClusterCandidates(candidates))
		report.GroupID = assignment.GroupID
	}

	report.Processed = true
	if err := p.store.MarkProcessed(ctx, report); err != nil {
		return apperr.Wrap(apperr.ErrTransientStorage, "mark report %d processed: %v", reportID, err)
	}

	p.publish(broadcaster.TopicReportProcessed, report)

	unlock := p.locks.lock(report.GroupID)
	defer unlock()

	if isEmergency {
		return p.fuseEmergency(ctx, report)
	}
	return p.fuseGroup(ctx, report.GroupID)
}

// fuseEmergency constructs and persists the hazard event for a LoRa SOS
// beacon directly, without waiting on the classifier/clusterer/fusion
// pipeline: an emergency beacon is always confidence 0.99, severity 5,
// status emergency, per §4.5 and the original system's
// process_new_lora_sos. It still goes through the same upsert-then-refetch
// path as fuseGroup, so the published event is the row as stored.
func (p *Pipeline) fuseEmergency(ctx context.Context, report *models.Report) error {
	evidence := fusion.BuildEvidence([]models.Report{*report})
	evidenceJSON, err := fusion.EvidenceJSON(evidence)
	if err != nil {
		evidenceJSON = "{}"
	}

	event := &models.HazardEvent{
		GroupID:     report.GroupID,
		Kind:        models.HazardEmergency,
		Confidence:  0.99,
		Severity:    5,
		Status:      models.StatusEmergency,
		CentroidLat: report.Lat,
		CentroidLon: report.Lon,
		Evidence:    evidenceJSON,
	}

	id, err := p.store.UpsertHazardEvent(ctx, event)
	if err != nil {
		return apperr.Wrap(apperr.ErrTransientStorage, "upsert emergency hazard event for group %d: %v", report.GroupID, err)
	}

	final, err := p.store.GetHazardEvent(ctx, id)
	if err != nil {
		return err
	}

	p.publish(broadcaster.TopicEmergencyAlert, final)
	return nil
}

// fuseGroup re-runs fusion across every processed report in groupID and
// writes the result. Re-fusing the whole group (rather than patching in
// just the new report) is what lets confidence climb as corroborating
// reports arrive — the same progressive-fusion behavior as the original
// system's _process_group_fusion.
func (p *Pipeline) fuseGroup(ctx context.Context, groupID int64) error {
	reports, err := p.store.ReportsInGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return nil
	}

	result := fusion.Fuse(reports)
	evidenceJSON, err := fusion.EvidenceJSON(result.Evidence)
	if err != nil {
		evidenceJSON = "{}"
	}

	event := &models.HazardEvent{
		GroupID:     groupID,
		Kind:        result.Kind,
		Confidence:  result.Confidence,
		Severity:    result.Severity,
		Status:      result.Status,
		CentroidLat: result.CentroidLat,
		CentroidLon: result.CentroidLon,
		Evidence:    evidenceJSON,
	}

	id, err := p.store.UpsertHazardEvent(ctx, event)
	if err != nil {
		return apperr.Wrap(apperr.ErrTransientStorage, "upsert hazard event for group %d: %v", groupID, err)
	}

	// Re-read the row rather than trusting our computed event: if an
	// administrator has pinned this event (§9 decision (a)), the store's
	// ON CONFLICT clause kept the pinned status/confidence/severity/kind in
	// place and our in-memory copy no longer reflects what was written.
	final, err := p.store.GetHazardEvent(ctx, id)
	if err != nil {
		return err
	}

	topic := broadcaster.TopicHazardUpdated
	if final.Status == models.StatusEmergency {
		topic = broadcaster.TopicEmergencyAlert
	}
	p.publish(topic, final)
	return nil
}

func toClusterCandidates(reports []models.Report) []clusterer.Candidate {
	candidates := make([]clusterer.Candidate, len(reports))
	for i, r := range reports {
		candidates[i] = clusterer.Candidate{
			ID:      r.ID,
			GroupID: r.GroupID,
			Lat:     r.Lat,
			Lon:     r.Lon,
			Ts:      r.Ts,
			Text:    r.Text,
		}
	}
	return candidates
}
