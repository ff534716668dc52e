// internal/adapters/reviewsapi/client.go
package reviewsapi

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"review_dashboard/internal/adapters/observability"
	"review_dashboard/internal/domain"
)

const service = "reviews_api"

// Client talks to the review backend. GETs are retried on 429/5xx; mutations are
// sent once so that a non-2xx status reaches the caller as the failure signal.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", base)
	}
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		base: u.String(),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// StatusError is a non-2xx response not covered by a domain sentinel.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bad status %d", e.Status)
	}
	return fmt.Sprintf("bad status %d: %s", e.Status, e.Body)
}

// ---- Public API ----

func (c *Client) ListReviews(ctx context.Context) ([]domain.Review, error) {
	var out struct {
		Reviews []domain.Review `json:"reviews"`
	}
	if err := c.get(ctx, "reviews/hostaway", nil, &out); err != nil {
		return nil, err
	}
	return out.Reviews, nil
}

func (c *Client) ApprovedIDs(ctx context.Context) ([]int64, error) {
	var out struct {
		Approved []int64 `json:"approved"`
	}
	if err := c.get(ctx, "reviews/approved", nil, &out); err != nil {
		return nil, err
	}
	return out.Approved, nil
}

func (c *Client) ApprovedWithTimestamps(ctx context.Context) ([]domain.ApprovalStamp, error) {
	var out struct {
		Approved []domain.ApprovalStamp `json:"approved"`
	}
	if err := c.get(ctx, "reviews/approved-with-ts", nil, &out); err != nil {
		return nil, err
	}
	return out.Approved, nil
}

func (c *Client) SetApprovals(ctx context.Context, changes []domain.ApprovalChange) error {
	if changes == nil {
		changes = []domain.ApprovalChange{}
	}
	return c.send(ctx, http.MethodPost, "reviews/approve", nil, changes)
}

func (c *Client) PlaceReviews(ctx context.Context, placeID string) ([]domain.Review, error) {
	var out struct {
		Reviews []domain.Review `json:"reviews"`
	}
	if err := c.get(ctx, "reviews/google", url.Values{"place_id": {placeID}}, &out); err != nil {
		return nil, err
	}
	return out.Reviews, nil
}

// GetPlaceMapping reports ok=false when the listing has no mapping (including 404).
func (c *Client) GetPlaceMapping(ctx context.Context, listing string) (string, bool, error) {
	var out struct {
		PlaceID *string `json:"place_id"`
	}
	err := c.get(ctx, "place-mapping", url.Values{"listing": {listing}}, &out)
	if errors.Is(err, domain.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if out.PlaceID == nil || *out.PlaceID == "" {
		return "", false, nil
	}
	return *out.PlaceID, true, nil
}

func (c *Client) SavePlaceMapping(ctx context.Context, m domain.PlaceMapping) error {
	return c.send(ctx, http.MethodPost, "place-mapping", nil, m)
}

func (c *Client) DeletePlaceMapping(ctx context.Context, listing string) error {
	return c.send(ctx, http.MethodDelete, "place-mapping", url.Values{"listing": {listing}}, nil)
}

// ---- Internals ----

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.base + "/" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "review-dashboard/1.0")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// get performs a GET with client-side rate limiting, retries, and JSON decode into out.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	u := c.endpoint(path, q)

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := c.newRequest(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, path, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal(service, path, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = &StatusError{Status: resp.StatusCode}
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		default:
			return decode(resp, out)
		}
	}
	return lastErr
}

// send issues a single non-idempotent request. The response body is drained and ignored.
func (c *Client) send(ctx context.Context, method, path string, q url.Values, body any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, c.endpoint(path, q), rd)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal(service, path, 0, time.Since(start))
		return err
	}
	observability.ObserveExternal(service, path, resp.StatusCode, time.Since(start))
	return decode(resp, nil)
}

// decode maps the status to an error, or decodes a 2xx JSON body into out (when non-nil).
func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return domain.ErrForbidden
	default:
		// read a small error body for diagnostics
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay (200ms, 400ms, 800ms...) with up to
// +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
