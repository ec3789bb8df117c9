package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmaganga/majisync/internal/logging"
	"github.com/dmaganga/majisync/internal/models"
)

// HTTPGateway talks JSON over HTTP to the billing server's mobile API.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
	log     logging.Logger
}

// NewHTTPGateway builds a gateway for the given base URL, authenticating
// every request with the device's bearer token. timeout bounds each call.
func NewHTTPGateway(baseURL, token string, timeout time.Duration, log logging.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (g *HTTPGateway) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	var body snapshotResponse
	if err := g.getWithRetry(ctx, "/mobile/bootstrap", nil, &body); err != nil {
		return nil, err
	}
	return &Snapshot{
		Clients:     mapClients(body.Clients),
		Meters:      mapMeters(body.Meters),
		Assignments: mapAssignments(body.Assignments),
		Cycles:      mapCycles(body.Cycles),
		Readings:    mapReadings(body.Readings),
		Checkpoint:  body.LastSync.Time,
	}, nil
}

func (g *HTTPGateway) FetchUpdates(ctx context.Context, since time.Time) (*Delta, error) {
	q := url.Values{"since": {since.UTC().Format(time.RFC3339Nano)}}
	var body updatesResponse
	if err := g.getWithRetry(ctx, "/mobile/updates", q, &body); err != nil {
		return nil, err
	}
	delta := &Delta{
		Clients:     mapClients(body.Clients),
		Meters:      mapMeters(body.Meters),
		Assignments: mapAssignments(body.Assignments),
		Cycles:      mapCycles(body.Cycles),
		Readings:    mapReadings(body.Readings),
		Checkpoint:  body.LastSync.Time,
	}
	for _, t := range body.Tombstones {
		delta.Tombstones = append(delta.Tombstones, Tombstone{
			EntityType: t.EntityType,
			EntityID:   t.EntityID,
			Action:     t.Action,
			Timestamp:  t.Timestamp.Time,
		})
	}
	return delta, nil
}

func (g *HTTPGateway) SubmitReading(ctx context.Context, sub ReadingSubmission) (*ReadingAck, error) {
	if sub.Source == "" {
		sub.Source = "mobile"
	}

	resp, err := g.do(ctx, http.MethodPost, "/mobile/readings", nil, sub)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var ack readingResponse
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			return nil, fmt.Errorf("failed to decode reading response: %w", err)
		}
		return &ReadingAck{ServerID: ack.ID, Status: mapAckStatus(ack.Status)}, nil

	case http.StatusConflict:
		var body conflictResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("failed to decode conflict response: %w", err)
		}
		ce := &ConflictError{Reason: body.Detail.Conflict.Reason}
		if sr := body.Detail.Conflict.ServerReading; sr != nil {
			r := mapReading(*sr)
			ce.ServerReading = &r
		}
		return nil, ce

	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, &ValidationError{Reason: readErrorDetail(resp.Body)}

	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
}

func (g *HTTPGateway) AcknowledgeResolution(ctx context.Context, serverReadingID int64, action ResolutionAction) error {
	path := fmt.Sprintf("/mobile/conflicts/%d/resolve", serverReadingID)
	q := url.Values{"resolution": {string(action)}}

	resp, err := g.do(ctx, http.MethodPost, path, q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (g *HTTPGateway) Ping(ctx context.Context) error {
	resp, err := g.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// do performs one HTTP round trip. Transport failures and 5xx responses are
// wrapped in ErrUnavailable; anything else is left to the caller to classify.
func (g *HTTPGateway) do(ctx context.Context, method, path string, query url.Values, payload any) (*http.Response, error) {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	}
	return resp, nil
}

// getWithRetry fetches a JSON document, retrying transient transport errors
// with fibonacci backoff. Only idempotent GETs go through here; mutations are
// retried by the sync queue, not in-call.
func (g *HTTPGateway) getWithRetry(ctx context.Context, path string, query url.Values, out any) error {
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := g.do(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		return nil
	})
}

func readErrorDetail(r io.Reader) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil || body.Detail == "" {
		return "payload rejected"
	}
	return body.Detail
}

func mapAckStatus(s string) models.ReadingStatus {
	switch s {
	case "PENDING", "":
		// The server queues the reading for review; from the client's
		// side that is SUBMITTED.
		return models.ReadingSubmitted
	default:
		return models.ReadingStatus(s)
	}
}
