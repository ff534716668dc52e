// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"review_dashboard/internal/app"
	"review_dashboard/internal/domain"
)

// VersionHeader carries the approval state version a response was rendered from.
const VersionHeader = "X-State-Version"

// Handlers is the dashboard's view controller: it turns HTTP calls into engine and
// merger operations and renders their snapshots as JSON.
type Handlers struct {
	Engine  *app.ApprovalEngine
	Merger  *app.SourceMerger
	Journal domain.Journal // optional

	validate *validator.Validate
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// mutationProblem still carries the settled (rolled back) state so the UI can show
// a non-blocking notice and keep rendering.
type mutationProblem struct {
	problem
	Version uint64                `json:"version"`
	Results []domain.ChangeResult `json:"results"`
}

func (s *Server) MountHandlers(h *Handlers) {
	h.validate = newValidator()

	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1", func(r chi.Router) {
		r.Post("/reload", h.reload)
		r.Get("/reviews", h.listReviews)
		r.Get("/stats", h.stats)
		r.Get("/filters", h.filters)
		r.Post("/reviews/{id}/toggle", h.toggle)
		r.Get("/reviews/{id}/history", h.history)
		r.Post("/approvals", h.setApprovals)
		r.Get("/properties/{listing}", h.property)
		r.Get("/properties/{listing}/place-mapping", h.getMapping)
		r.Put("/properties/{listing}/place-mapping", h.putMapping)
		r.Delete("/properties/{listing}/place-mapping", h.deleteMapping)
		r.Get("/places/{placeID}/reviews", h.placeReviews)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeJSONStatus(w, status, "application/problem+json", problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeJSONStatus(w, status, "application/json", v)
}

func writeJSONStatus(w http.ResponseWriter, status int, ctype string, v any) {
	w.Header().Set("Content-Type", ctype)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrNotLoaded):
		writeProblem(w, http.StatusServiceUnavailable, "Not loaded", "reviews have not been loaded yet")
	case errors.Is(err, domain.ErrLoadFailed):
		writeProblem(w, http.StatusBadGateway, "Reviews unavailable", err.Error())
	default:
		writeProblem(w, http.StatusBadGateway, "Upstream error", err.Error())
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); etag != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

func (h *Handlers) loadedSnapshot(w http.ResponseWriter) (app.Snapshot, bool) {
	snap := h.Engine.Snapshot()
	if !snap.Loaded {
		writeError(w, domain.ErrNotLoaded)
		return snap, false
	}
	return snap, true
}

func setVersion(w http.ResponseWriter, v uint64) {
	w.Header().Set(VersionHeader, strconv.FormatUint(v, 10))
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func reviewID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return 0, false
	}
	return id, true
}

func (h *Handlers) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Load(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	snap := h.Engine.Snapshot()
	setVersion(w, snap.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  snap.Version,
		"reviews":  len(snap.Reviews),
		"approved": len(snap.State.ApprovedIDs()),
	})
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadedSnapshot(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := domain.FilterState{
		Listing:  q.Get("listing"),
		Channel:  q.Get("channel"),
		Rating:   q.Get("rating"),
		Category: q.Get("category"),
		SortBy:   domain.SortKey(q.Get("sort")),
	}
	if f.SortBy != "" && f.SortBy != domain.SortByDate && f.SortBy != domain.SortByRating {
		writeProblem(w, http.StatusBadRequest, "Invalid sort", "sort must be date or rating")
		return
	}
	out := app.FilterAndSort(snap.Reviews, f)
	setVersion(w, snap.Version)
	writeCached(w, r, map[string]any{"version": snap.Version, "count": len(out), "reviews": out})
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadedSnapshot(w)
	if !ok {
		return
	}
	writeCached(w, r, map[string]any{"version": snap.Version, "properties": app.ComputeStats(snap.Reviews)})
}

func (h *Handlers) filters(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadedSnapshot(w)
	if !ok {
		return
	}
	writeCached(w, r, app.Options(snap.Reviews))
}

func (h *Handlers) toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewID(w, r)
	if !ok {
		return
	}
	// once sent, a change is settled even if the caller goes away
	res, err := h.Engine.Toggle(context.WithoutCancel(r.Context()), id)
	h.writeChange(w, []domain.ChangeResult{res}, err)
}

func (h *Handlers) setApprovals(w http.ResponseWriter, r *http.Request) {
	var body []domain.ApprovalChange
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected a JSON array of {id, approved}")
		return
	}
	if len(body) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "approval batch is empty")
		return
	}
	for _, c := range body {
		if err := h.validate.Struct(c); err != nil {
			writeError(w, validationError(err))
			return
		}
	}
	res, err := h.Engine.SetApprovals(context.WithoutCancel(r.Context()), body)
	h.writeChange(w, res, err)
}

func (h *Handlers) writeChange(w http.ResponseWriter, res []domain.ChangeResult, err error) {
	version := h.Engine.Version()
	setVersion(w, version)
	if errors.Is(err, domain.ErrMutationFailed) {
		p := mutationProblem{
			problem: problem{Type: "about:blank", Title: "Approval not saved", Status: http.StatusBadGateway, Detail: err.Error()},
			Version: version,
			Results: res,
		}
		writeJSONStatus(w, http.StatusBadGateway, "application/problem+json", p)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": version, "results": res})
}

func (h *Handlers) history(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewID(w, r)
	if !ok {
		return
	}
	if h.Journal == nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "moderation journal is disabled")
		return
	}
	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}
	entries, err := h.Journal.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	type entry struct {
		EntryID string         `json:"entryId"`
		Desired bool           `json:"desired"`
		Outcome domain.Outcome `json:"outcome"`
		Version uint64         `json:"version"`
		At      int64          `json:"at"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{EntryID: e.EntryID, Desired: e.Desired, Outcome: e.Outcome, Version: e.Version, At: e.At.Unix()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "entries": out})
}

func (h *Handlers) property(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadedSnapshot(w)
	if !ok {
		return
	}
	preview, _ := strconv.ParseBool(r.URL.Query().Get("preview"))
	pv := h.Merger.PropertyView(r.Context(), pathParam(r, "listing"), snap, preview)
	writeJSON(w, http.StatusOK, pv)
}

func (h *Handlers) getMapping(w http.ResponseWriter, r *http.Request) {
	listing := pathParam(r, "listing")
	placeID, ok, err := h.Merger.Mapping(r.Context(), listing)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "no place mapping for listing")
		return
	}
	writeJSON(w, http.StatusOK, domain.PlaceMapping{Listing: listing, PlaceID: placeID})
}

func (h *Handlers) putMapping(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlaceID string `json:"place_id" validate:"required"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected {\"place_id\": \"...\"}")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeError(w, validationError(err))
		return
	}
	m := domain.PlaceMapping{Listing: pathParam(r, "listing"), PlaceID: body.PlaceID}
	if err := h.Merger.SaveMapping(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) deleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := h.Merger.RemoveMapping(r.Context(), pathParam(r, "listing")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) placeReviews(w http.ResponseWriter, r *http.Request) {
	rs, err := h.Merger.FetchPlaceReviews(r.Context(), pathParam(r, "placeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": rs})
}
