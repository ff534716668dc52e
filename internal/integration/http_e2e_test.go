//go:build integration || !unit

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	server "review_dashboard/internal/adapters/http_server"
	redisad "review_dashboard/internal/adapters/redis"
	"review_dashboard/internal/adapters/reviewsapi"
	"review_dashboard/internal/app"
	"review_dashboard/internal/domain"
)

// ---------- in-memory review backend speaking the remote wire format ----------

type reviewBackend struct {
	mu          sync.Mutex
	reviews     []map[string]any
	approved    map[int64]bool
	stamps      map[int64]int64
	mappings    map[string]string
	google      map[string][]map[string]any
	failApprove bool
	googleHits  int
}

func (b *reviewBackend) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /reviews/hostaway", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		write(w, map[string]any{"reviews": b.reviews})
	})
	mux.HandleFunc("GET /reviews/approved", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		ids := []int64{}
		for id, ok := range b.approved {
			if ok {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		write(w, map[string]any{"approved": ids})
	})
	mux.HandleFunc("GET /reviews/approved-with-ts", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		out := []map[string]int64{}
		for id, ts := range b.stamps {
			out = append(out, map[string]int64{"id": id, "updated_at": ts})
		}
		write(w, map[string]any{"approved": out})
	})
	mux.HandleFunc("POST /reviews/approve", func(w http.ResponseWriter, r *http.Request) {
		var changes []domain.ApprovalChange
		if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failApprove {
			http.Error(w, "db unavailable", http.StatusInternalServerError)
			return
		}
		for _, c := range changes {
			b.approved[c.ID] = c.Approved
			if !c.Approved {
				delete(b.stamps, c.ID)
			}
		}
		write(w, map[string]any{"ok": true})
	})
	mux.HandleFunc("GET /reviews/google", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.googleHits++
		write(w, map[string]any{"reviews": b.google[r.URL.Query().Get("place_id")]})
	})
	mux.HandleFunc("GET /place-mapping", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if id, ok := b.mappings[r.URL.Query().Get("listing")]; ok {
			write(w, map[string]any{"place_id": id})
			return
		}
		write(w, map[string]any{})
	})
	mux.HandleFunc("POST /place-mapping", func(w http.ResponseWriter, r *http.Request) {
		var m domain.PlaceMapping
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.mappings[m.Listing] = m.PlaceID
		write(w, map[string]any{"ok": true})
	})
	mux.HandleFunc("DELETE /place-mapping", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.mappings, r.URL.Query().Get("listing"))
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// ---------- helpers ----------

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return res.StatusCode
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return res.StatusCode
}

func find(rs []domain.Review, id int64) domain.Review {
	for _, r := range rs {
		if r.ID == id {
			return r
		}
	}
	return domain.Review{}
}

// ---------- the test ----------

func TestHTTP_EndToEnd_Dashboard(t *testing.T) {
	be := &reviewBackend{
		reviews: []map[string]any{
			{"id": 1, "listing": "A", "rating": 8, "date": "2024-01-01"},
			{"id": 2, "listing": "A", "rating": 0, "date": "2024-01-02"},
			{"id": 3, "listing": "B", "rating": 5, "date": "2024-01-03"},
		},
		approved: map[int64]bool{1: true, 3: true},
		stamps:   map[int64]int64{1: 500},
		mappings: map[string]string{"A": "place-a"},
		google: map[string][]map[string]any{
			"place-a": {{"id": 9001, "listing": "A", "channel": "google", "rating": 9}},
		},
	}
	upstream := httptest.NewServer(be.handler())
	defer upstream.Close()

	mr := miniredis.RunT(t)
	cache := redisad.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	client, err := reviewsapi.New(upstream.URL, "", 100)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	engine := app.NewApprovalEngine(client, client, nil)
	merger := app.NewSourceMerger(client, cache, 24*time.Hour)

	srv := server.New([]string{"*"})
	srv.MountHandlers(&server.Handlers{Engine: engine, Merger: merger})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	// stats: rating 0 does not count
	var stats struct {
		Properties []domain.PropertyStats `json:"properties"`
	}
	if code := getJSON(t, ts.URL+"/v1/stats", &stats); code != http.StatusOK {
		t.Fatalf("stats status %d", code)
	}
	want := []domain.PropertyStats{{Listing: "A", AverageRating: 8, ReviewCount: 1}, {Listing: "B", AverageRating: 5, ReviewCount: 1}}
	if fmt.Sprint(stats.Properties) != fmt.Sprint(want) {
		t.Fatalf("stats got %+v want %+v", stats.Properties, want)
	}

	// annotations
	var list struct {
		Reviews []domain.Review `json:"reviews"`
	}
	getJSON(t, ts.URL+"/v1/reviews", &list)
	if r := find(list.Reviews, 1); !r.DisplayOnWebsite || r.ApprovedAt == nil || *r.ApprovedAt != 500 {
		t.Fatalf("review 1: %+v", r)
	}
	if r := find(list.Reviews, 3); !r.DisplayOnWebsite || r.ApprovedAt != nil {
		t.Fatalf("review 3: %+v", r)
	}
	if r := find(list.Reviews, 2); r.DisplayOnWebsite {
		t.Fatalf("review 2: %+v", r)
	}

	// toggle round trip
	var change struct {
		Results []domain.ChangeResult `json:"results"`
	}
	if code := postJSON(t, ts.URL+"/v1/reviews/2/toggle", &change); code != http.StatusOK {
		t.Fatalf("toggle status %d", code)
	}
	if len(change.Results) != 1 || change.Results[0].Outcome != domain.OutcomeConfirmed || !change.Results[0].Approved {
		t.Fatalf("toggle results: %+v", change.Results)
	}

	// failing mutation rolls back only the toggled review
	be.mu.Lock()
	be.failApprove = true
	be.mu.Unlock()
	change.Results = nil
	if code := postJSON(t, ts.URL+"/v1/reviews/3/toggle", &change); code != http.StatusBadGateway {
		t.Fatalf("failing toggle status %d", code)
	}
	if len(change.Results) != 1 || change.Results[0].Outcome != domain.OutcomeRolledBack {
		t.Fatalf("rollback results: %+v", change.Results)
	}
	getJSON(t, ts.URL+"/v1/reviews", &list)
	if !find(list.Reviews, 3).DisplayOnWebsite || !find(list.Reviews, 2).DisplayOnWebsite || !find(list.Reviews, 1).DisplayOnWebsite {
		t.Fatalf("rollback touched other reviews: %+v", list.Reviews)
	}

	// property page: secondary reviews first in preview mode, served from cache the second time
	var pv domain.PropertyView
	getJSON(t, ts.URL+"/v1/properties/A?preview=true", &pv)
	if len(pv.Reviews) != 3 || pv.Reviews[0].ID != 9001 {
		t.Fatalf("preview: %+v", pv.Reviews)
	}
	pv = domain.PropertyView{}
	getJSON(t, ts.URL+"/v1/properties/A", &pv)
	if len(pv.Reviews) != 2 || len(pv.Secondary) != 1 {
		t.Fatalf("approved view: %+v", pv)
	}
	be.mu.Lock()
	hits := be.googleHits
	be.mu.Unlock()
	if hits != 1 {
		t.Fatalf("secondary reviews should be cached, upstream hits=%d", hits)
	}
	if !mr.Exists("reviewdash:place-reviews:place-a") {
		t.Fatalf("expected cache entry in redis")
	}
}
