package domain

import "time"

// ApprovalChange is one element of the batch sent to POST reviews/approve.
type ApprovalChange struct {
	ID       int64 `json:"id" validate:"required"`
	Approved bool  `json:"approved"`
}

// ApprovalStamp is one element of GET reviews/approved-with-ts.
type ApprovalStamp struct {
	ID        int64 `json:"id"`
	UpdatedAt int64 `json:"updated_at"` // unix seconds
}

type Approval struct {
	Approved   bool   `json:"approved"`
	ApprovedAt *int64 `json:"approvedAt,omitempty"`
}

// ApprovalState is the client's view of which reviews are approved.
// Approved is the boolean view; ApprovedAt is the timestamped view and every
// key in it must also be true in Approved.
type ApprovalState struct {
	Version    uint64
	Approved   map[int64]bool
	ApprovedAt map[int64]int64
}

func NewApprovalState() ApprovalState {
	return ApprovalState{Approved: map[int64]bool{}, ApprovedAt: map[int64]int64{}}
}

func (s ApprovalState) IsApproved(id int64) bool { return s.Approved[id] }

func (s ApprovalState) Get(id int64) Approval {
	a := Approval{Approved: s.Approved[id]}
	if ts, ok := s.ApprovedAt[id]; ok && a.Approved {
		a.ApprovedAt = &ts
	}
	return a
}

func (s ApprovalState) Clone() ApprovalState {
	out := ApprovalState{
		Version:    s.Version,
		Approved:   make(map[int64]bool, len(s.Approved)),
		ApprovedAt: make(map[int64]int64, len(s.ApprovedAt)),
	}
	for k, v := range s.Approved {
		out.Approved[k] = v
	}
	for k, v := range s.ApprovedAt {
		out.ApprovedAt[k] = v
	}
	return out
}

// ApprovedIDs returns the ids currently approved, in no particular order.
func (s ApprovalState) ApprovedIDs() []int64 {
	out := make([]int64, 0, len(s.Approved))
	for id, ok := range s.Approved {
		if ok {
			out = append(out, id)
		}
	}
	return out
}

type Outcome string

const (
	OutcomeConfirmed     Outcome = "confirmed"      // server agreed with the optimistic value
	OutcomeOverridden    Outcome = "overridden"     // refreshed server set disagreed and won
	OutcomeLocalFallback Outcome = "local_fallback" // refresh empty/failed, optimistic value kept
	OutcomeRolledBack    Outcome = "rolled_back"    // mutation failed, previous value restored
	OutcomeSuperseded    Outcome = "superseded"     // a newer result already replaced this one
)

type ChangeResult struct {
	ID       int64   `json:"id"`
	Desired  bool    `json:"desired"`
	Previous bool    `json:"previous"`
	Approved bool    `json:"approved"`
	Outcome  Outcome `json:"outcome"`
}

type ModerationEntry struct {
	EntryID  string
	ReviewID int64
	Desired  bool
	Outcome  Outcome
	Version  uint64
	At       time.Time
}
