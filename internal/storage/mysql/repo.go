package mysql

import (
	"context"
	"database/sql"

	"review_dashboard/internal/domain"
)

// Repo is the moderation journal. It is an audit trail only; approval truth stays
// with the remote backend.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Record(ctx context.Context, e domain.ModerationEntry) error {
	_, err := r.db.ExecContext(ctx, insertModerationSQL,
		e.EntryID,
		e.ReviewID,
		e.Desired,
		string(e.Outcome),
		e.Version,
		e.At.UTC(),
	)
	return err
}

func (r *Repo) History(ctx context.Context, reviewID int64, limit int) ([]domain.ModerationEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, listModerationSQL, reviewID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ModerationEntry
	for rows.Next() {
		var (
			e       domain.ModerationEntry
			outcome string
		)
		if err := rows.Scan(&e.EntryID, &e.ReviewID, &e.Desired, &outcome, &e.Version, &e.At); err != nil {
			return nil, err
		}
		e.Outcome = domain.Outcome(outcome)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
