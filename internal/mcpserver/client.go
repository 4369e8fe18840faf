package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the ScamShield API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // API key, e.g. "sk_..."
}

// ScamShieldClient is a pure HTTP client for the ScamShield API.
type ScamShieldClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewScamShieldClient creates a new client for the ScamShield API.
func NewScamShieldClient(cfg Config) *ScamShieldClient {
	return &ScamShieldClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *ScamShieldClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// Classify runs a one-shot risk classification over the supplied signals.
func (c *ScamShieldClient) Classify(ctx context.Context, body map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/classify", nil, body)
}

// GetAssessment fetches a stored risk assessment by ID.
func (c *ScamShieldClient) GetAssessment(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/assessments/"+id, nil, nil)
}

// GetRiskStats returns assessment counts grouped by risk tier.
func (c *ScamShieldClient) GetRiskStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/assessments/stats", nil, nil)
}

// StartSession opens a live call session for incremental scoring.
func (c *ScamShieldClient) StartSession(ctx context.Context, phoneNumber string) (json.RawMessage, error) {
	body := map[string]string{
		"phoneNumber": phoneNumber,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/sessions", nil, body)
}

// AddFragment feeds a transcript fragment into a live session and returns
// the rescored assessment.
func (c *ScamShieldClient) AddFragment(ctx context.Context, sessionID, text string, amount *float64) (json.RawMessage, error) {
	body := map[string]any{
		"text": text,
	}
	if amount != nil {
		body["amountMentioned"] = *amount
	}
	path := "/v1/sessions/" + sessionID + "/fragments"
	return c.doRequest(ctx, http.MethodPost, path, nil, body)
}

// EndSession closes a live call session and returns its final state.
func (c *ScamShieldClient) EndSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	path := "/v1/sessions/" + sessionID + "/end"
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// MatchVoice compares a base64-encoded audio sample against stored voiceprints.
func (c *ScamShieldClient) MatchVoice(ctx context.Context, audioB64 string) (json.RawMessage, error) {
	body := map[string]string{
		"audio": audioB64,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/voice/match", nil, body)
}

// ListAlerts lists scam alerts raised during live sessions.
func (c *ScamShieldClient) ListAlerts(ctx context.Context, userID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("userId", userID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/alerts", q, nil)
}
