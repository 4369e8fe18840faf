package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *ScamShieldClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *ScamShieldClient) *Handlers {
	return &Handlers{client: client}
}

// HandleClassifyCall scores a call or message in one shot.
func (h *Handlers) HandleClassifyCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone := req.GetString("phone_number", "")
	text := req.GetString("text", "")
	if phone == "" && text == "" {
		return mcp.NewToolResultError("provide phone_number, text, or both"), nil
	}

	body := map[string]any{}
	if phone != "" {
		body["phoneNumber"] = phone
	}
	if text != "" {
		body["text"] = text
	}
	if amount := req.GetFloat("amount", 0); amount > 0 {
		body["amountMentioned"] = amount
	}
	if dur := req.GetInt("duration_seconds", 0); dur > 0 {
		body["durationSeconds"] = dur
	}

	raw, err := h.client.Classify(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Classification failed: %v", err)), nil
	}

	out, err := formatAssessment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}

	return mcp.NewToolResultText(out), nil
}

// HandleCheckNumber checks a phone number's calling pattern alone.
func (h *Handlers) HandleCheckNumber(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone := req.GetString("phone_number", "")
	if phone == "" {
		return mcp.NewToolResultError("phone_number is required"), nil
	}

	raw, err := h.client.Classify(ctx, map[string]any{"phoneNumber": phone})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Number check failed: %v", err)), nil
	}

	text, err := formatAssessment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleStartSession opens a live call session.
func (h *Handlers) HandleStartSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone := req.GetString("phone_number", "")
	if phone == "" {
		return mcp.NewToolResultError("phone_number is required"), nil
	}

	raw, err := h.client.StartSession(ctx, phone)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start session: %v", err)), nil
	}

	var sess map[string]any
	if err := json.Unmarshal(raw, &sess); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Call session started.\n"+
			"Session ID: %s\n"+
			"Phone: %s\n\n"+
			"Feed transcript chunks with add_call_transcript, then close with end_call_session.",
		getString(sess, "id"), getString(sess, "phoneNumber"))), nil
}

// HandleAddTranscript feeds a transcript fragment into a live session.
func (h *Handlers) HandleAddTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	var amount *float64
	if v := req.GetFloat("amount", 0); v > 0 {
		amount = &v
	}

	raw, err := h.client.AddFragment(ctx, sessionID, text, amount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to add transcript: %v", err)), nil
	}

	out, err := formatFragmentResult(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse result: %v", err)), nil
	}

	return mcp.NewToolResultText(out), nil
}

// HandleEndSession closes a live call session.
func (h *Handlers) HandleEndSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	raw, err := h.client.EndSession(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to end session: %v", err)), nil
	}

	out, err := formatSessionSummary(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}

	return mcp.NewToolResultText(out), nil
}

// HandleMatchVoice compares an audio sample against stored voiceprints.
func (h *Handlers) HandleMatchVoice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	audio := req.GetString("audio", "")
	if audio == "" {
		return mcp.NewToolResultError("audio is required"), nil
	}

	raw, err := h.client.MatchVoice(ctx, audio)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Voice match failed: %v", err)), nil
	}

	out, err := formatMatchResult(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse matches: %v", err)), nil
	}

	return mcp.NewToolResultText(out), nil
}

// HandleListAlerts lists session scam alerts.
func (h *Handlers) HandleListAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListAlerts(ctx, userID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list alerts: %v", err)), nil
	}

	out, err := formatAlertList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alerts: %v", err)), nil
	}

	return mcp.NewToolResultText(out), nil
}

// HandleRiskStats returns assessment counts by tier.
func (h *Handlers) HandleRiskStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetRiskStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	var resp struct {
		ByTier map[string]int `json:"byTier"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ByTier == nil {
		return mcp.NewToolResultText(formatJSON(raw)), nil
	}

	var sb strings.Builder
	sb.WriteString("Assessments by risk tier:\n")
	total := 0
	for _, tier := range []string{"critical", "high", "medium", "low"} {
		n := resp.ByTier[tier]
		total += n
		sb.WriteString(fmt.Sprintf("  %-8s %d\n", tier+":", n))
	}
	sb.WriteString(fmt.Sprintf("  total:   %d\n", total))
	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

func formatAssessment(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	writeAssessment(&sb, m, "")
	return sb.String(), nil
}

// writeAssessment renders one assessment, indented by prefix.
func writeAssessment(sb *strings.Builder, m map[string]any, prefix string) {
	tier := getString(m, "tier")
	score, _ := getFloat(m, "rawScore")
	conf, _ := getFloat(m, "confidence")

	fmt.Fprintf(sb, "%sRisk: %s (score %.2f, confidence %.2f)\n", prefix, strings.ToUpper(tier), score, conf)
	if v := getString(m, "scamCategory"); v != "" {
		fmt.Fprintf(sb, "%sCategory: %s\n", prefix, v)
	}
	if v := getString(m, "recommendation"); v != "" {
		fmt.Fprintf(sb, "%sRecommendation: %s\n", prefix, v)
	}
	if v := getString(m, "id"); v != "" {
		fmt.Fprintf(sb, "%sAssessment ID: %s\n", prefix, v)
	}

	evidence, _ := m["evidence"].([]any)
	if len(evidence) > 0 {
		fmt.Fprintf(sb, "%sEvidence:\n", prefix)
		for _, e := range evidence {
			em, ok := e.(map[string]any)
			if !ok {
				continue
			}
			w, _ := getFloat(em, "weight")
			fmt.Fprintf(sb, "%s  - [%s] %s (+%.2f)\n", prefix, getString(em, "kind"), getString(em, "detail"), w)
		}
	}
}

func formatFragmentResult(raw json.RawMessage) (string, error) {
	var resp struct {
		Assessment map[string]any `json:"assessment"`
		Alert      map[string]any `json:"alert"`
		Worst      map[string]any `json:"worst"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Assessment == nil {
		return "", fmt.Errorf("no assessment in response")
	}

	var sb strings.Builder
	if resp.Alert != nil {
		fmt.Fprintf(&sb, "ALERT: risk escalated to %s (alert %s)\n\n",
			strings.ToUpper(getString(resp.Alert, "tier")), getString(resp.Alert, "id"))
	}
	writeAssessment(&sb, resp.Assessment, "")

	if resp.Worst != nil {
		worstTier := getString(resp.Worst, "tier")
		if worstTier != "" && worstTier != getString(resp.Assessment, "tier") {
			worstScore, _ := getFloat(resp.Worst, "rawScore")
			fmt.Fprintf(&sb, "\nWorst so far this call: %s (score %.2f)\n", strings.ToUpper(worstTier), worstScore)
		}
	}
	return sb.String(), nil
}

func formatSessionSummary(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s ended.\n", getString(m, "id"))
	fmt.Fprintf(&sb, "Phone: %s\n", getString(m, "phoneNumber"))
	if v, ok := getFloat(m, "fragmentCount"); ok {
		fmt.Fprintf(&sb, "Fragments analyzed: %.0f\n", v)
	}
	if worst, ok := m["worst"].(map[string]any); ok {
		sb.WriteString("\nWorst assessment during the call:\n")
		writeAssessment(&sb, worst, "  ")
	} else {
		sb.WriteString("No risk signals were scored during this call.\n")
	}
	return sb.String(), nil
}

func formatMatchResult(raw json.RawMessage) (string, error) {
	var resp struct {
		Matches []struct {
			Fingerprint map[string]any `json:"fingerprint"`
			Similarity  float64        `json:"similarity"`
			Confidence  string         `json:"confidence"`
		} `json:"matches"`
		KnownScammer bool `json:"knownScammer"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Matches) == 0 {
		return "No matching voiceprints found.", nil
	}

	var sb strings.Builder
	if resp.KnownScammer {
		sb.WriteString("WARNING: this voice matches a known scammer.\n\n")
	}
	fmt.Fprintf(&sb, "Found %d matching voiceprint(s):\n\n", len(resp.Matches))
	for i, match := range resp.Matches {
		fp := match.Fingerprint
		if fp == nil {
			continue
		}
		name := getString(fp, "callerName")
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, name)
		fmt.Fprintf(&sb, "   Similarity: %.0f%% (%s confidence)\n", match.Similarity*100, match.Confidence)
		if v := getString(fp, "phoneNumber"); v != "" {
			fmt.Fprintf(&sb, "   Phone: %s\n", v)
		}
		if flagged, ok := fp["isScammer"].(bool); ok && flagged {
			sb.WriteString("   Flagged as scammer\n")
		}
		if i < len(resp.Matches)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatAlertList(raw json.RawMessage) (string, error) {
	var resp struct {
		Alerts []map[string]any `json:"alerts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected alerts response format")
	}

	if len(resp.Alerts) == 0 {
		return "No alerts found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d alert(s):\n\n", len(resp.Alerts))
	for i, a := range resp.Alerts {
		fmt.Fprintf(&sb, "%d. [%s] session %s\n", i+1, strings.ToUpper(getString(a, "tier")), getString(a, "sessionId"))
		if assessment, ok := a["assessment"].(map[string]any); ok {
			if v := getString(assessment, "scamCategory"); v != "" {
				fmt.Fprintf(&sb, "   Category: %s\n", v)
			}
			if score, ok := getFloat(assessment, "rawScore"); ok {
				fmt.Fprintf(&sb, "   Score: %.2f\n", score)
			}
		}
		if v := getString(a, "createdAt"); v != "" {
			fmt.Fprintf(&sb, "   At: %s\n", v)
		}
		if ack, ok := a["acknowledged"].(bool); ok && ack {
			sb.WriteString("   Acknowledged\n")
		}
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
