package weekendwillsdk

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
)

// Client is a minimal Weekend Will HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Progress mirrors the derived completion state.
type Progress struct {
	CompletedSections []string `json:"completed_sections"`
	CurrentSection    string   `json:"current_section,omitempty"`
	PercentComplete   int      `json:"percent_complete"`
}

// Will represents the API will model (partial).
type Will struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	StateCompliance string          `json:"state_compliance"`
	Sections        json.RawMessage `json:"sections"`
	Progress        Progress        `json:"progress"`
	Version         int             `json:"version"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
	ExecutedAt      *string         `json:"executed_at,omitempty"`
}

// WillSummary is the listing shape.
type WillSummary struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	StateCompliance string   `json:"state_compliance"`
	Progress        Progress `json:"progress"`
	Version         int      `json:"version"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

// ExecutionStatus reports eligibility for the execution ceremony.
type ExecutionStatus struct {
	CanBeExecuted bool     `json:"can_be_executed"`
	Status        string   `json:"status"`
	Blockers      []string `json:"blockers,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	WillID     string         `json:"will_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// InterviewState is what the guided flow renders for one step.
type InterviewState struct {
	Will     Will     `json:"will"`
	Step     string   `json:"step"`
	StepIdx  int      `json:"step_index"`
	Steps    []string `json:"steps"`
	CanGoTo  []string `json:"can_go_to"`
	Complete bool     `json:"complete"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateWill creates a draft will. state may be empty to use the server default.
func (c *Client) CreateWill(ctx context.Context, state string) (Will, error) {
	var resp Will
	err := c.do(ctx, http.MethodPost, "wills", map[string]any{"state": state}, &resp, nil)
	return resp, err
}

// GetWill fetches a will by id.
func (c *Client) GetWill(ctx context.Context, id string) (Will, error) {
	var resp Will
	err := c.do(ctx, http.MethodGet, "wills/"+url.PathEscape(id), nil, &resp, nil)
	return resp, err
}

// ListWills returns the caller's wills.
func (c *Client) ListWills(ctx context.Context) ([]WillSummary, error) {
	var resp []WillSummary
	err := c.do(ctx, http.MethodGet, "wills", nil, &resp, nil)
	return resp, err
}

// UpdateSection replaces one section wholesale. expectVersion 0 skips the
// optimistic-lock check.
func (c *Client) UpdateSection(ctx context.Context, willID, section string, payload any, expectVersion int) (Will, error) {
	var headers map[string]string
	if expectVersion > 0 {
		headers = map[string]string{"If-Match": fmt.Sprintf("%d", expectVersion)}
	}
	endpoint := fmt.Sprintf("wills/%s/sections/%s", url.PathEscape(willID), url.PathEscape(section))
	var resp Will
	err := c.do(ctx, http.MethodPut, endpoint, payload, &resp, headers)
	return resp, err
}

// ExecutionStatus reports whether a will can be executed and why not.
func (c *Client) ExecutionStatus(ctx context.Context, willID string) (ExecutionStatus, error) {
	var resp ExecutionStatus
	err := c.do(ctx, http.MethodGet, "wills/"+url.PathEscape(willID)+"/execution-status", nil, &resp, nil)
	return resp, err
}

// ExecuteWill performs the completed to executed transition.
func (c *Client) ExecuteWill(ctx context.Context, willID string, witnessInfo any) (Will, error) {
	var resp Will
	err := c.do(ctx, http.MethodPost, "wills/"+url.PathEscape(willID)+"/execute", witnessInfo, &resp, nil)
	return resp, err
}

// DeleteWill removes a will.
func (c *Client) DeleteWill(ctx context.Context, willID string) error {
	return c.do(ctx, http.MethodDelete, "wills/"+url.PathEscape(willID), nil, nil, nil)
}

// Events returns recent events for a will, newest first.
func (c *Client) Events(ctx context.Context, willID string, limit int) ([]Event, error) {
	endpoint := "wills/" + url.PathEscape(willID) + "/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp, nil)
	return resp, err
}

// StartInterview creates a draft and opens the guided flow.
func (c *Client) StartInterview(ctx context.Context, state string) (InterviewState, error) {
	var resp InterviewState
	err := c.do(ctx, http.MethodPost, "interview", map[string]any{"state": state}, &resp, nil)
	return resp, err
}

// SubmitInterviewStep applies one step's section payloads atomically.
func (c *Client) SubmitInterviewStep(ctx context.Context, willID, step string, sections map[string]any) (InterviewState, error) {
	endpoint := fmt.Sprintf("interview/%s/steps/%s", url.PathEscape(willID), url.PathEscape(step))
	var resp InterviewState
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"sections": sections}, &resp, nil)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any, headers map[string]string) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
