package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"review_dashboard/internal/domain"
)

// SourceMerger combines the primary reviews of a listing with reviews from the
// place-keyed secondary source. Secondary failures never reach the primary view.
type SourceMerger struct {
	places   domain.PlaceReviewSource
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewSourceMerger(p domain.PlaceReviewSource, c domain.Cache, ttl time.Duration) *SourceMerger {
	return &SourceMerger{places: p, cache: c, cacheTTL: ttl}
}

func placeKey(placeID string) string { return "place-reviews:" + placeID }

// Merge prepends the listing's secondary reviews to primary. Without a mapping, or
// when the secondary fetch fails, primary is returned as is.
func (m *SourceMerger) Merge(ctx context.Context, listing string, primary []domain.Review) []domain.Review {
	placeID, ok := m.lookup(ctx, listing)
	if !ok {
		return primary
	}
	sec, err := m.placeReviews(ctx, placeID, true)
	if err != nil {
		log.Warn().Err(err).Str("listing", listing).Str("place_id", placeID).Msg("secondary reviews unavailable")
		return primary
	}
	out := make([]domain.Review, 0, len(sec)+len(primary))
	out = append(out, sec...)
	return append(out, primary...)
}

// PropertyView builds the detail page for one listing from an engine snapshot. In
// preview mode the approval filter is bypassed and secondary reviews lead the list.
func (m *SourceMerger) PropertyView(ctx context.Context, listing string, snap Snapshot, preview bool) domain.PropertyView {
	pv := domain.PropertyView{Listing: listing, Preview: preview, Approved: []domain.Review{}, Secondary: []domain.Review{}}

	var primary []domain.Review
	for _, r := range snap.Reviews {
		if r.Listing != listing {
			continue
		}
		primary = append(primary, r)
		if r.DisplayOnWebsite {
			pv.Approved = append(pv.Approved, r)
		}
	}

	if placeID, ok := m.lookup(ctx, listing); ok {
		pv.PlaceID = placeID
		if sec, err := m.placeReviews(ctx, placeID, true); err != nil {
			log.Warn().Err(err).Str("listing", listing).Str("place_id", placeID).Msg("secondary reviews unavailable")
		} else {
			pv.Secondary = sec
		}
	}

	if preview {
		pv.Reviews = make([]domain.Review, 0, len(pv.Secondary)+len(primary))
		pv.Reviews = append(pv.Reviews, pv.Secondary...)
		pv.Reviews = append(pv.Reviews, primary...)
	} else {
		pv.Reviews = pv.Approved
	}
	return pv
}

// FetchPlaceReviews reads secondary reviews for an arbitrary place id. Unlike Merge,
// errors are returned so the caller can report them.
func (m *SourceMerger) FetchPlaceReviews(ctx context.Context, placeID string) ([]domain.Review, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, fmt.Errorf("%w: place id is required", domain.ErrInvalidInput)
	}
	return m.placeReviews(ctx, placeID, true)
}

// Prefetch refreshes the cached secondary reviews of a mapped listing and returns how
// many were cached. mapped is false for listings without a place mapping.
func (m *SourceMerger) Prefetch(ctx context.Context, listing string) (n int, mapped bool, err error) {
	placeID, ok, err := m.places.GetPlaceMapping(ctx, listing)
	if err != nil || !ok || placeID == "" {
		return 0, false, err
	}
	sec, err := m.placeReviews(ctx, placeID, false)
	if err != nil {
		return 0, true, err
	}
	return len(sec), true, nil
}

func (m *SourceMerger) Mapping(ctx context.Context, listing string) (string, bool, error) {
	return m.places.GetPlaceMapping(ctx, listing)
}

func (m *SourceMerger) SaveMapping(ctx context.Context, pm domain.PlaceMapping) error {
	pm.Listing, pm.PlaceID = strings.TrimSpace(pm.Listing), strings.TrimSpace(pm.PlaceID)
	if pm.Listing == "" || pm.PlaceID == "" {
		return fmt.Errorf("%w: listing and place_id are required", domain.ErrInvalidInput)
	}
	return m.places.SavePlaceMapping(ctx, pm)
}

func (m *SourceMerger) RemoveMapping(ctx context.Context, listing string) error {
	return m.places.DeletePlaceMapping(ctx, listing)
}

func (m *SourceMerger) lookup(ctx context.Context, listing string) (string, bool) {
	placeID, ok, err := m.places.GetPlaceMapping(ctx, listing)
	if err != nil {
		log.Warn().Err(err).Str("listing", listing).Msg("place mapping lookup failed")
		return "", false
	}
	return placeID, ok && placeID != ""
}

// placeReviews goes through the cache; useCached=false forces a remote read and
// rewrites the entry. Cache errors are logged and otherwise ignored.
func (m *SourceMerger) placeReviews(ctx context.Context, placeID string, useCached bool) ([]domain.Review, error) {
	key := placeKey(placeID)
	if m.cache != nil && useCached {
		var cached []domain.Review
		ok, err := m.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	rs, err := m.places.PlaceReviews(ctx, placeID)
	if err != nil {
		return nil, err
	}
	// secondary reviews carry no approval state of their own
	for i := range rs {
		rs[i].DisplayOnWebsite = false
		rs[i].ApprovedAt = nil
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, key, rs, m.cacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return rs, nil
}
