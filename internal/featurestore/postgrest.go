package featurestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/supabase-community/postgrest-go"

	"oncycle.org/delay-api/internal/logging"
)

// PostgREST queries a Supabase table through its REST interface.
type PostgREST struct {
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

func NewPostgREST(baseURL, apiKey string, logger *slog.Logger) (*PostgREST, error) {
	if baseURL == "" {
		return nil, errors.New("postgrest feature store requires SUPABASE_URL")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid feature store url %q", baseURL)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &PostgREST{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger,
	}, nil
}

func (s *PostgREST) Name() string { return BackendPostgREST }

func (s *PostgREST) Lookup(ctx context.Context, q Query) (Row, bool, error) {
	body, _, err := s.client(ctx).
		From(q.Table).
		Select(strings.Join(q.Columns, ","), "", false).
		Eq("train_id", q.TrainID).
		Eq("scheduled_departure_time", q.ScheduledDepartureTime).
		Eq("day_of_week", strconv.Itoa(q.DayOfWeek)).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, false, fmt.Errorf("feature store request failed: %w", err)
	}

	var rows []map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, false, fmt.Errorf("decoding feature rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return Row(rows[0]), true, nil
}

// client builds a fresh PostgREST handle for one lookup. Requests made
// through it are bound to ctx.
func (s *PostgREST) client(ctx context.Context) *postgrest.Client {
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["apikey"] = s.apiKey
		headers["Authorization"] = "Bearer " + s.apiKey
	}
	c := postgrest.NewClient(s.baseURL+"/rest/v1", "", headers)
	if c.Transport != nil {
		c.Transport.Parent = contextTransport{ctx: ctx, next: http.DefaultTransport}
	}
	return c
}

type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}

// Ping checks that the REST root answers without a server error.
func (s *PostgREST) Ping(ctx context.Context) error {
	_, err := s.get(ctx, s.baseURL+"/rest/v1/")
	return err
}

func (s *PostgREST) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feature store request failed: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, s.logger, "feature_store_response_body")

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading feature store response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("feature store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
