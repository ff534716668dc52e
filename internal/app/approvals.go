package app

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"review_dashboard/internal/adapters/observability"
	"review_dashboard/internal/domain"
)

// ApprovalEngine owns the client-side approval state and keeps the annotated review
// list consistent with it. Network calls are made without holding the lock; state is
// only touched between them.
//
// Every server read is stamped with a sequence number when it is issued. A read result
// is applied only if its stamp is newer than the last applied one, so a slow response
// can never overwrite a more recent state.
type ApprovalEngine struct {
	reviews   domain.ReviewSource
	approvals domain.ApprovalStore
	journal   domain.Journal
	now       func() time.Time

	mu      sync.Mutex
	seq     uint64 // last issued stamp
	applied uint64 // stamp of the last applied server read
	loaded  bool
	base    []domain.Review // as fetched
	view    []domain.Review // annotated; replaced, never mutated in place
	state   domain.ApprovalState
	pending map[int64]tentative
}

// tentative is an optimistic value that the server has not confirmed yet.
type tentative struct {
	stamp   uint64
	desired bool
}

// Snapshot is an immutable view of the engine at one version.
type Snapshot struct {
	Version uint64
	Loaded  bool
	Reviews []domain.Review
	State   domain.ApprovalState
}

func NewApprovalEngine(rs domain.ReviewSource, as domain.ApprovalStore, j domain.Journal) *ApprovalEngine {
	return &ApprovalEngine{
		reviews:   rs,
		approvals: as,
		journal:   j,
		now:       time.Now,
		state:     domain.NewApprovalState(),
		pending:   map[int64]tentative{},
	}
}

// MergeApprovals seeds the boolean view from ids and overlays the timestamped view.
// A timestamped entry always marks its id approved.
func MergeApprovals(ids []int64, stamps []domain.ApprovalStamp) domain.ApprovalState {
	st := domain.NewApprovalState()
	for _, id := range ids {
		st.Approved[id] = true
	}
	for _, s := range stamps {
		st.Approved[s.ID] = true
		st.ApprovedAt[s.ID] = s.UpdatedAt
	}
	return st
}

// Annotate returns a copy of reviews with the derived approval fields set from st.
func Annotate(reviews []domain.Review, st domain.ApprovalState) []domain.Review {
	out := make([]domain.Review, len(reviews))
	for i, r := range reviews {
		a := st.Get(r.ID)
		r.DisplayOnWebsite = a.Approved
		r.ApprovedAt = a.ApprovedAt
		out[i] = r
	}
	return out
}

func (e *ApprovalEngine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Version: e.state.Version,
		Loaded:  e.loaded,
		Reviews: slices.Clone(e.view),
		State:   e.state.Clone(),
	}
}

// Version is the current state version without copying the snapshot.
func (e *ApprovalEngine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Version
}

func (e *ApprovalEngine) Approval(id int64) domain.Approval {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Get(id)
}

// Load fetches reviews and both approval views in parallel and combines them once all
// three have settled. Approval sources that fail are treated as empty; a failed review
// fetch fails the whole load and leaves the previous state untouched.
func (e *ApprovalEngine) Load(ctx context.Context) error {
	stamp := e.issue()

	var (
		reviews []domain.Review
		ids     []int64
		stamps  []domain.ApprovalStamp
		g       errgroup.Group
	)
	g.Go(func() error {
		rs, err := e.reviews.ListReviews(ctx)
		if err != nil {
			return err
		}
		reviews = rs
		return nil
	})
	g.Go(func() error {
		v, err := e.approvals.ApprovedIDs(ctx)
		if err != nil {
			degraded("approved", err)
			return nil
		}
		ids = v
		return nil
	})
	g.Go(func() error {
		v, err := e.approvals.ApprovedWithTimestamps(ctx)
		if err != nil {
			degraded("approved-with-ts", err)
			return nil
		}
		stamps = v
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("review load failed")
		observability.ObserveReconcile("load", "failed")
		return fmt.Errorf("%w: %w", domain.ErrLoadFailed, err)
	}

	merged := MergeApprovals(ids, stamps)

	e.mu.Lock()
	defer e.mu.Unlock()

	if stamp <= e.applied {
		// A newer read already landed. Keep its approvals, but take the reviews if
		// this is the first successful load.
		if !e.loaded {
			e.base, e.loaded = reviews, true
			e.commitLocked()
		}
		log.Debug().Uint64("stamp", stamp).Uint64("applied", e.applied).Msg("stale load discarded")
		observability.ObserveReconcile("load", "stale")
		return nil
	}

	e.base, e.loaded = reviews, true
	e.applyServerLocked(stamp, merged)
	log.Info().
		Int("reviews", len(reviews)).
		Int("approved", len(ids)).
		Int("timestamped", len(stamps)).
		Uint64("version", e.state.Version).
		Msg("reviews loaded")
	observability.ObserveReconcile("load", "applied")
	return nil
}

// Toggle flips the approval of id (unseen ids count as unapproved).
func (e *ApprovalEngine) Toggle(ctx context.Context, id int64) (domain.ChangeResult, error) {
	e.mu.Lock()
	changes := []domain.ApprovalChange{{ID: id, Approved: !e.state.Approved[id]}}
	stamp, prev := e.beginLocked(changes)
	e.mu.Unlock()

	res, err := e.settle(ctx, "toggle", stamp, changes, prev)
	return res[0], err
}

// SetApprovals applies a batch of desired values. Duplicate ids collapse to the last
// value given.
func (e *ApprovalEngine) SetApprovals(ctx context.Context, changes []domain.ApprovalChange) ([]domain.ChangeResult, error) {
	changes = dedupe(changes)
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: empty approval batch", domain.ErrInvalidInput)
	}

	e.mu.Lock()
	stamp, prev := e.beginLocked(changes)
	e.mu.Unlock()

	return e.settle(ctx, "batch", stamp, changes, prev)
}

// beginLocked applies the tentative values and returns the previous ones, timestamps
// included, so a rollback restores exactly what was shown before.
func (e *ApprovalEngine) beginLocked(changes []domain.ApprovalChange) (uint64, map[int64]domain.Approval) {
	e.seq++
	stamp := e.seq
	prev := make(map[int64]domain.Approval, len(changes))
	for _, c := range changes {
		prev[c.ID] = e.state.Get(c.ID)
		e.setLocked(c.ID, c.Approved)
		e.pending[c.ID] = tentative{stamp: stamp, desired: c.Approved}
	}
	e.commitLocked()
	return stamp, prev
}

// settle sends the mutation, then re-reads the approved set. The re-read only starts
// after the mutation response has been observed.
func (e *ApprovalEngine) settle(ctx context.Context, op string, stamp uint64, changes []domain.ApprovalChange, prev map[int64]domain.Approval) ([]domain.ChangeResult, error) {
	if err := e.approvals.SetApprovals(ctx, changes); err != nil {
		res := e.rollback(stamp, changes, prev)
		log.Warn().Err(err).Interface("changes", changes).Msg("approval mutation failed")
		e.record(ctx, op, res)
		return res, fmt.Errorf("%w: %w", domain.ErrMutationFailed, err)
	}

	refresh := e.issue()
	ids, rerr := e.approvals.ApprovedIDs(ctx)
	if rerr != nil {
		degraded("approved", rerr)
	}

	e.mu.Lock()
	for _, c := range changes {
		if p, ok := e.pending[c.ID]; ok && p.stamp == stamp {
			delete(e.pending, c.ID)
		}
	}

	var outcome func(c domain.ApprovalChange) domain.Outcome
	switch {
	case refresh <= e.applied:
		outcome = func(domain.ApprovalChange) domain.Outcome { return domain.OutcomeSuperseded }
	case rerr != nil || len(ids) == 0:
		// Keep the optimistic map rather than dropping the user's action.
		outcome = func(domain.ApprovalChange) domain.Outcome { return domain.OutcomeLocalFallback }
	default:
		next := e.state.Clone()
		next.Approved = make(map[int64]bool, len(ids))
		for _, id := range ids {
			next.Approved[id] = true
		}
		for id := range next.ApprovedAt {
			if !next.Approved[id] {
				delete(next.ApprovedAt, id)
			}
		}
		e.applyServerLocked(refresh, next)
		outcome = func(c domain.ApprovalChange) domain.Outcome {
			if e.state.Approved[c.ID] == c.Approved {
				return domain.OutcomeConfirmed
			}
			return domain.OutcomeOverridden
		}
	}

	res := make([]domain.ChangeResult, 0, len(changes))
	for _, c := range changes {
		res = append(res, domain.ChangeResult{
			ID:       c.ID,
			Desired:  c.Approved,
			Previous: prev[c.ID].Approved,
			Approved: e.state.Approved[c.ID],
			Outcome:  outcome(c),
		})
	}
	e.mu.Unlock()

	e.record(ctx, op, res)
	return res, nil
}

// rollback restores the pre-change value of each id, unless a newer toggle of the same
// id is pending or a server read issued after the change has already been applied.
func (e *ApprovalEngine) rollback(stamp uint64, changes []domain.ApprovalChange, prev map[int64]domain.Approval) []domain.ChangeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := make([]domain.ChangeResult, 0, len(changes))
	changed := false
	for _, c := range changes {
		r := domain.ChangeResult{ID: c.ID, Desired: c.Approved, Previous: prev[c.ID].Approved, Outcome: domain.OutcomeSuperseded}
		if p, ok := e.pending[c.ID]; ok && p.stamp == stamp {
			delete(e.pending, c.ID)
			if e.applied < stamp {
				e.restoreLocked(c.ID, prev[c.ID])
				r.Outcome = domain.OutcomeRolledBack
				changed = true
			}
		}
		r.Approved = e.state.Approved[c.ID]
		res = append(res, r)
	}
	if changed {
		e.commitLocked()
	}
	return res
}

// applyServerLocked installs a server-derived state, then re-applies tentative values
// issued after the read (the read cannot reflect them).
func (e *ApprovalEngine) applyServerLocked(stamp uint64, st domain.ApprovalState) {
	st.Version = e.state.Version
	e.state = st
	for id, p := range e.pending {
		if p.stamp > stamp {
			e.setLocked(id, p.desired)
		}
	}
	e.applied = stamp
	e.commitLocked()
}

func (e *ApprovalEngine) setLocked(id int64, approved bool) {
	e.state.Approved[id] = approved
	if !approved {
		delete(e.state.ApprovedAt, id)
	}
}

func (e *ApprovalEngine) restoreLocked(id int64, a domain.Approval) {
	e.setLocked(id, a.Approved)
	if a.ApprovedAt != nil {
		e.state.ApprovedAt[id] = *a.ApprovedAt
	}
}

func (e *ApprovalEngine) commitLocked() {
	e.state.Version++
	e.view = Annotate(e.base, e.state)
}

func (e *ApprovalEngine) issue() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (e *ApprovalEngine) record(ctx context.Context, op string, res []domain.ChangeResult) {
	for _, r := range res {
		observability.ObserveReconcile(op, string(r.Outcome))
	}
	if e.journal == nil {
		return
	}
	e.mu.Lock()
	version := e.state.Version
	e.mu.Unlock()
	for _, r := range res {
		err := e.journal.Record(ctx, domain.ModerationEntry{
			EntryID:  uuid.NewString(),
			ReviewID: r.ID,
			Desired:  r.Desired,
			Outcome:  r.Outcome,
			Version:  version,
			At:       e.now().UTC(),
		})
		if err != nil {
			log.Warn().Err(err).Int64("id", r.ID).Msg("journal write failed")
		}
	}
}

func dedupe(changes []domain.ApprovalChange) []domain.ApprovalChange {
	idx := make(map[int64]int, len(changes))
	out := make([]domain.ApprovalChange, 0, len(changes))
	for _, c := range changes {
		if i, ok := idx[c.ID]; ok {
			out[i].Approved = c.Approved
			continue
		}
		idx[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

func degraded(source string, err error) {
	log.Warn().Err(err).Str("source", source).Msg("approval source unavailable, treating as empty")
	observability.ObserveDegraded(source)
}
