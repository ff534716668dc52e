package app_test

import (
	"context"
	"errors"
	"sync"

	"review_dashboard/internal/domain"
)

// ---- fakes ----

var errBoom = errors.New("boom")

// fakeBackend plays the remote review API. When applyOnSet is true a successful
// SetApprovals updates the approved set the way the real server does.
type fakeBackend struct {
	mu         sync.Mutex
	reviews    []domain.Review
	reviewsErr error
	approved   []int64
	approvErr  error
	stamps     []domain.ApprovalStamp
	stampsErr  error
	setErr     error
	applyOnSet bool
	sets       [][]domain.ApprovalChange

	listGate chan struct{} // ListReviews waits on it when non-nil
	setGate  chan struct{} // SetApprovals waits on it when non-nil
	calls    chan string   // best-effort call log
}

func newBackend() *fakeBackend { return &fakeBackend{calls: make(chan string, 64)} }

func (f *fakeBackend) note(name string) {
	select {
	case f.calls <- name:
	default:
	}
}

func (f *fakeBackend) ListReviews(ctx context.Context) ([]domain.Review, error) {
	f.note("ListReviews")
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewsErr != nil {
		return nil, f.reviewsErr
	}
	return append([]domain.Review(nil), f.reviews...), nil
}

func (f *fakeBackend) ApprovedIDs(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.note("ApprovedIDs")
	if f.approvErr != nil {
		return nil, f.approvErr
	}
	return append([]int64(nil), f.approved...), nil
}

func (f *fakeBackend) ApprovedWithTimestamps(ctx context.Context) ([]domain.ApprovalStamp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.note("ApprovedWithTimestamps")
	if f.stampsErr != nil {
		return nil, f.stampsErr
	}
	return append([]domain.ApprovalStamp(nil), f.stamps...), nil
}

func (f *fakeBackend) SetApprovals(ctx context.Context, changes []domain.ApprovalChange) error {
	f.note("SetApprovals")
	f.mu.Lock()
	gate := f.setGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, append([]domain.ApprovalChange(nil), changes...))
	if f.setErr != nil {
		return f.setErr
	}
	if f.applyOnSet {
		set := map[int64]bool{}
		for _, id := range f.approved {
			set[id] = true
		}
		for _, c := range changes {
			set[c.ID] = c.Approved
		}
		f.approved = f.approved[:0]
		for id, ok := range set {
			if ok {
				f.approved = append(f.approved, id)
			}
		}
	}
	return nil
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// waitFor drains the call log until every name has been seen.
func (f *fakeBackend) waitFor(names ...string) {
	want := map[string]int{}
	for _, n := range names {
		want[n]++
	}
	for len(want) > 0 {
		n := <-f.calls
		if want[n] > 0 {
			want[n]--
			if want[n] == 0 {
				delete(want, n)
			}
		}
	}
}

type fakePlaces struct {
	mu        sync.Mutex
	mappings  map[string]string
	mapErr    error
	reviews   map[string][]domain.Review
	fetchErr  error
	fetches   int
	saved     []domain.PlaceMapping
	deleted   []string
	mutateErr error
}

func (p *fakePlaces) PlaceReviews(ctx context.Context, placeID string) ([]domain.Review, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return append([]domain.Review(nil), p.reviews[placeID]...), nil
}

func (p *fakePlaces) GetPlaceMapping(ctx context.Context, listing string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mapErr != nil {
		return "", false, p.mapErr
	}
	id, ok := p.mappings[listing]
	return id, ok, nil
}

func (p *fakePlaces) SavePlaceMapping(ctx context.Context, m domain.PlaceMapping) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mutateErr != nil {
		return p.mutateErr
	}
	p.saved = append(p.saved, m)
	if p.mappings == nil {
		p.mappings = map[string]string{}
	}
	p.mappings[m.Listing] = m.PlaceID
	return nil
}

func (p *fakePlaces) DeletePlaceMapping(ctx context.Context, listing string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mutateErr != nil {
		return p.mutateErr
	}
	p.deleted = append(p.deleted, listing)
	delete(p.mappings, listing)
	return nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []domain.ModerationEntry
}

func (j *fakeJournal) Record(ctx context.Context, e domain.ModerationEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *fakeJournal) History(ctx context.Context, id int64, limit int) ([]domain.ModerationEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.ModerationEntry
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if j.entries[i].ReviewID == id {
			out = append(out, j.entries[i])
		}
	}
	return out, nil
}
