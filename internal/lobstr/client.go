// Package lobstr implements leads.Provider against the Lobstr.io REST API.
package lobstr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/config"
	"github.com/JakeFAU/content-orchestrator/internal/leads"
	"github.com/JakeFAU/content-orchestrator/internal/metrics"
)

const (
	providerName = "lobstr"
	maxErrorBody = 2048
	pageSize     = 100
	maxPages     = 50
)

// Config configures the client.
type Config struct {
	BaseURL       string
	APIKey        config.KeyFunc
	RatePerSecond float64
}

// Client is a rate-limited Lobstr.io API client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ leads.Provider = (*Client)(nil)

// New builds a Client. A non-positive rate disables limiting.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Client{cfg: cfg, httpClient: httpClient, limiter: rate.NewLimiter(limit, 1)}
}

type squidResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	IsActive bool           `json:"is_active"`
	Params   map[string]any `json:"params"`
}

// GetSquid returns the squid configuration.
func (c *Client) GetSquid(ctx context.Context, squidID string) (leads.Squid, error) {
	var out squidResponse
	if err := c.call(ctx, "get squid", http.MethodGet, "/squids/"+url.PathEscape(squidID), nil, &out); err != nil {
		return leads.Squid{}, err
	}
	squid := leads.Squid{ID: out.ID, Name: out.Name, IsActive: out.IsActive}
	if squid.ID == "" {
		squid.ID = squidID
	}
	squid.MaxResults = intValue(out.Params, "max_results")
	return squid, nil
}

// UpdateSquid overwrites the run settings of a squid.
func (c *Client) UpdateSquid(ctx context.Context, squidID string, settings leads.SquidSettings) error {
	body := map[string]any{
		"params": map[string]any{
			"max_results": settings.MaxResults,
		},
		"export_unique_results": settings.UniqueResults,
	}
	if settings.Concurrency > 0 {
		body["concurrency"] = settings.Concurrency
	}
	return c.call(ctx, "update squid", http.MethodPost, "/squids/"+url.PathEscape(squidID), body, nil)
}

type listEnvelope struct {
	Data       []map[string]any `json:"data"`
	TotalPages int              `json:"total_pages"`
	Page       int              `json:"page"`
}

// ListTasks returns the IDs of every task attached to the squid.
func (c *Client) ListTasks(ctx context.Context, squidID string) ([]string, error) {
	var ids []string
	for page := 1; page <= maxPages; page++ {
		q := url.Values{"squid": {squidID}, "page": {strconv.Itoa(page)}}
		var out listEnvelope
		if err := c.call(ctx, "list tasks", http.MethodGet, "/tasks?"+q.Encode(), nil, &out); err != nil {
			return nil, err
		}
		for _, task := range out.Data {
			if id := stringValue(task, "id", "hash_value"); id != "" {
				ids = append(ids, id)
			}
		}
		if len(out.Data) == 0 || page >= out.TotalPages {
			break
		}
	}
	return ids, nil
}

// DeleteTask removes one task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.call(ctx, "delete task", http.MethodDelete, "/tasks/"+url.PathEscape(taskID), nil, nil)
}

type addTasksRequest struct {
	Squid string           `json:"squid"`
	Tasks []map[string]any `json:"tasks"`
}

type addTasksResponse struct {
	Tasks      []map[string]any `json:"tasks"`
	Duplicated int              `json:"duplicated_count"`
}

// AddTasks submits tasks to the squid and returns the created task IDs.
func (c *Client) AddTasks(ctx context.Context, squidID string, tasks []leads.TaskSpec) ([]string, error) {
	req := addTasksRequest{Squid: squidID}
	for _, t := range tasks {
		req.Tasks = append(req.Tasks, taskPayload(t))
	}
	var out addTasksResponse
	if err := c.call(ctx, "add tasks", http.MethodPost, "/tasks", req, &out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.Tasks))
	for _, task := range out.Tasks {
		if id := stringValue(task, "id", "hash_value"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func taskPayload(t leads.TaskSpec) map[string]any {
	if !t.Parametric() {
		return map[string]any{"url": t.URL}
	}
	p := map[string]any{"keyword": t.Query, "city": t.City, "country": t.Country}
	if t.Region != "" {
		p["region"] = t.Region
	}
	if t.Language != "" {
		p["language"] = t.Language
	}
	return p
}

type runResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	TotalResults int    `json:"total_results"`
	Done         bool   `json:"done"`
}

func (r runResponse) toProvider() leads.ProviderRun {
	return leads.ProviderRun{ID: r.ID, Status: r.Status, TotalResults: r.TotalResults, Done: r.Done}
}

// LaunchRun starts a run of the squid.
func (c *Client) LaunchRun(ctx context.Context, squidID string) (leads.ProviderRun, error) {
	var out runResponse
	if err := c.call(ctx, "launch run", http.MethodPost, "/runs", map[string]string{"squid": squidID}, &out); err != nil {
		return leads.ProviderRun{}, err
	}
	return out.toProvider(), nil
}

// GetRun reads a run's status and result counter.
func (c *Client) GetRun(ctx context.Context, runID string) (leads.ProviderRun, error) {
	var out runResponse
	if err := c.call(ctx, "get run", http.MethodGet, "/runs/"+url.PathEscape(runID), nil, &out); err != nil {
		return leads.ProviderRun{}, err
	}
	if out.ID == "" {
		out.ID = runID
	}
	return out.toProvider(), nil
}

// AbortRun aborts a run immediately.
func (c *Client) AbortRun(ctx context.Context, runID string) error {
	return c.call(ctx, "abort run", http.MethodPost, "/runs/"+url.PathEscape(runID)+"/abort", nil, nil)
}

// StopRun asks the provider to stop a run gracefully.
func (c *Client) StopRun(ctx context.Context, runID string) error {
	return c.call(ctx, "stop run", http.MethodPost, "/runs/"+url.PathEscape(runID)+"/stop", nil, nil)
}

// ListResults pages through a run's results until limit records are read.
// A non-positive limit reads every page.
func (c *Client) ListResults(ctx context.Context, runID string, limit int) ([]leads.Lead, error) {
	var out []leads.Lead
	for page := 1; page <= maxPages; page++ {
		q := url.Values{
			"run":       {runID},
			"page":      {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(pageSize)},
		}
		var env listEnvelope
		if err := c.call(ctx, "list results", http.MethodGet, "/results?"+q.Encode(), nil, &env); err != nil {
			return nil, err
		}
		for _, raw := range env.Data {
			out = append(out, decodeLead(raw))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if len(env.Data) < pageSize && page >= env.TotalPages {
			break
		}
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	key, err := c.cfg.APIKey()
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.Wrap(apperr.CodeTimeout, op, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Token "+key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	err = c.do(op, req, out)
	metrics.ObserveProviderRequest(providerName, err, time.Since(start))
	return err
}

func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.Wrap(apperr.CodeTimeout, op, err)
		}
		return apperr.Wrap(apperr.CodeNetwork, op, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.CodeNetwork, op, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return classify(op, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Provider(op, resp.StatusCode, "decode", "invalid JSON response", truncate(raw))
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// classify turns a non-2xx response into a typed error. Credit exhaustion is
// kept distinct because the user can resolve it by upgrading.
func classify(op string, status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)
	msg := firstNonEmpty(body.Message, body.Detail, body.Error)
	typ := firstNonEmpty(body.Type, body.Code)

	lower := strings.ToLower(string(raw))
	if status == http.StatusPaymentRequired ||
		strings.Contains(lower, "no_credits") ||
		strings.Contains(lower, "insufficient credits") {
		if msg == "" {
			msg = "Lobstr account has no credits left"
		}
		e := apperr.New(apperr.CodeCreditsExhausted, op, msg)
		e.WithDetail("status", status)
		e.WithDetail("type", "no_credits")
		e.WithDetail("body", truncate(raw))
		return e
	}
	if status == http.StatusNotFound {
		e := apperr.New(apperr.CodeNotFound, op, firstNonEmpty(msg, "resource not found"))
		e.WithDetail("status", status)
		e.WithDetail("body", truncate(raw))
		return e
	}
	return apperr.Provider(op, status, typ, msg, truncate(raw))
}

func decodeLead(raw map[string]any) leads.Lead {
	return leads.Lead{
		Name:         stringValue(raw, "name", "title"),
		Address:      stringValue(raw, "address", "full_address"),
		Phone:        stringValue(raw, "phone", "phone_number", "international_phone_number"),
		Website:      stringValue(raw, "website", "url_website"),
		Rating:       floatValue(raw, "score", "rating"),
		ReviewsCount: intValue(raw, "reviews_count", "total_reviews"),
		Category:     stringValue(raw, "category", "main_category"),
		Latitude:     floatValue(raw, "latitude", "lat"),
		Longitude:    floatValue(raw, "longitude", "lng"),
		PlaceID:      stringValue(raw, "place_id", "google_id"),
	}
}

func stringValue(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func floatValue(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func intValue(m map[string]any, keys ...string) int {
	return int(floatValue(m, keys...))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return string(raw)
}
