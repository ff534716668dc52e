package domain

import (
	"context"
	"time"
)

// ReviewSource is the primary (booking platform) review feed.
type ReviewSource interface {
	ListReviews(ctx context.Context) ([]Review, error)
}

// ApprovalStore is the remote source of truth for approval state.
type ApprovalStore interface {
	ApprovedIDs(ctx context.Context) ([]int64, error)
	ApprovedWithTimestamps(ctx context.Context) ([]ApprovalStamp, error)
	SetApprovals(ctx context.Context, changes []ApprovalChange) error
}

// PlaceReviewSource is the secondary, place-keyed review source plus its mapping table.
type PlaceReviewSource interface {
	PlaceReviews(ctx context.Context, placeID string) ([]Review, error)
	GetPlaceMapping(ctx context.Context, listing string) (placeID string, ok bool, err error)
	SavePlaceMapping(ctx context.Context, m PlaceMapping) error
	DeletePlaceMapping(ctx context.Context, listing string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Journal records settled moderation results. Optional; nil disables it.
type Journal interface {
	Record(ctx context.Context, e ModerationEntry) error
	History(ctx context.Context, reviewID int64, limit int) ([]ModerationEntry, error)
}
