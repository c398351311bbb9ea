package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/oceanguard/hazard-fusion/internal/apperr"
	"github.com/oceanguard/hazard-fusion/internal/store"
	"github.com/oceanguard/hazard-fusion/pkg/models"
)

// fakeStore is a minimal in-memory store.Store used only to drive the
// pipeline in tests, without a database.
type fakeStore struct {
	mu       sync.Mutex
	reports  map[int64]*models.Report
	events   map[int64]*models.HazardEvent
	nextRID  int64
	nextEID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reports: make(map[int64]*models.Report),
		events:  make(map[int64]*models.HazardEvent),
	}
}

func (f *fakeStore) SaveReport(ctx context.Context, r *models.Report) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRID++
	r.ID = f.nextRID
	cp := *r
	f.reports[r.ID] = &cp
	return r.ID, nil
}

func (f *fakeStore) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListReports(ctx context.Context, limit, offset int) ([]models.Report, error) {
	return nil, nil
}

func (f *fakeStore) UnprocessedReports(ctx context.Context, limit int) ([]models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Report
	for _, r := range f.reports {
		if !r.Processed {
			out = append(out, *r)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ReportsForDedup(ctx context.Context, excludeID int64) ([]models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Report
	for _, r := range f.reports {
		if r.ID != excludeID && r.Processed {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ReportsInGroup(ctx context.Context, groupID int64) ([]models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Report
	for _, r := range f.reports {
		if r.GroupID == groupID && r.Processed {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkProcessed(ctx context.Context, r *models.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reports[r.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *r
	f.reports[r.ID] = &cp
	return nil
}

func (f *fakeStore) UpsertHazardEvent(ctx context.Context, e *models.HazardEvent) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.events {
		if existing.GroupID == e.GroupID {
			if !existing.Pinned() {
				existing.Kind = e.Kind
				existing.Confidence = e.Confidence
				existing.Severity = e.Severity
				existing.Status = e.Status
			}
			existing.CentroidLat = e.CentroidLat
			existing.CentroidLon = e.CentroidLon
			existing.Evidence = e.Evidence
			return id, nil
		}
	}
	f.nextEID++
	cp := *e
	cp.ID = f.nextEID
	f.events[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeStore) GetHazardEvent(ctx context.Context, id int64) (*models.HazardEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) GetHazardEventByGroup(ctx context.Context, groupID int64) (*models.HazardEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.GroupID == groupID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListHazardEvents(ctx context.Context, filter store.HazardFilter) ([]models.HazardEvent, error) {
	return nil, nil
}

func (f *fakeStore) ValidateHazardEvent(ctx context.Context, id int64, status models.EventStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return apperr.ErrNotFound
	}
	switch status {
	case models.StatusApproved:
		e.Confidence = min(e.Confidence+store.ValidationApproveBoost, 1.0)
	case models.StatusRejected:
		e.Confidence = max(e.Confidence-store.ValidationRejectPenalty, 0.0)
	}
	e.Status = status
	e.ValidatedAt = time.Now()
	return nil
}

func (f *fakeStore) ListBulletins(ctx context.Context, limit int) ([]models.Bulletin, error) {
	return nil, nil
}

func (f *fakeStore) Stats(ctx context.Context) (store.ProcessingStats, error) {
	return store.ProcessingStats{}, nil
}

var _ store.Store = (*fakeStore)(nil)
