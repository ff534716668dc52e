package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"review_dashboard/internal/domain"
)

type WarmService struct {
	reviews domain.ReviewSource
	merger  *SourceMerger
	workers int
}

func NewWarmService(rs domain.ReviewSource, m *SourceMerger, workers int) *WarmService {
	if workers <= 0 {
		workers = 1
	}
	return &WarmService{reviews: rs, merger: m, workers: workers}
}

type WarmReport struct {
	Listings int
	Mapped   int
	Reviews  int
	Failed   int
}

// Run prefetches secondary reviews for every listing in the primary feed, at most
// `workers` at a time. Per-listing failures are counted, not returned.
func (w *WarmService) Run(ctx context.Context) (WarmReport, error) {
	rs, err := w.reviews.ListReviews(ctx)
	if err != nil {
		return WarmReport{}, err
	}
	listings := Options(rs).Listings

	var (
		mu  sync.Mutex
		rep = WarmReport{Listings: len(listings)}
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(w.workers))
	)
	for _, l := range listings {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return rep, err
		}
		wg.Add(1)
		go func(listing string) {
			defer wg.Done()
			defer sem.Release(1)

			n, mapped, err := w.merger.Prefetch(ctx, listing)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed++
				log.Warn().Str("listing", listing).Err(err).Msg("prefetch failed")
				return
			}
			if mapped {
				rep.Mapped++
				rep.Reviews += n
			}
			log.Debug().Str("listing", listing).Int("reviews", n).Msg("prefetch ok")
		}(l)
	}
	wg.Wait()
	return rep, nil
}
