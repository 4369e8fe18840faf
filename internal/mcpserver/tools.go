package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the ScamShield MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolClassifyCall = mcp.NewTool("classify_call",
	mcp.WithDescription(
		"Score a phone call or message for scam risk using ScamShield's multi-signal engine. "+
			"Accepts a caller phone number, a transcript or message text, and an optional money amount. "+
			"Returns a risk tier (low/medium/high/critical), a 0-1 score, the suspected scam category, "+
			"and the evidence behind the score. Supply at least one of phone_number or text."),
	mcp.WithString("phone_number",
		mcp.Description("Caller's phone number in E.164-ish form (e.g. '+15550001234')")),
	mcp.WithString("text",
		mcp.Description("Call transcript or message text to analyze")),
	mcp.WithNumber("amount",
		mcp.Description("Money amount mentioned in the call, if any (e.g. 50000)")),
	mcp.WithNumber("duration_seconds",
		mcp.Description("Call duration in seconds, used for call-pattern analysis")),
)

var ToolCheckNumber = mcp.NewTool("check_phone_number",
	mcp.WithDescription(
		"Quickly check a phone number for scam risk based on its calling pattern alone: "+
			"international origin, VoIP prefixes, and repeated-caller history. "+
			"Use classify_call instead when you also have transcript text."),
	mcp.WithString("phone_number",
		mcp.Required(),
		mcp.Description("The phone number to check (e.g. '+15550001234')")),
)

var ToolStartSession = mcp.NewTool("start_call_session",
	mcp.WithDescription(
		"Open a live call session for a phone call in progress. "+
			"Feed transcript chunks with add_call_transcript as the call unfolds; "+
			"each chunk is rescored over the full accumulated transcript and can raise alerts. "+
			"Close the session with end_call_session when the call ends."),
	mcp.WithString("phone_number",
		mcp.Required(),
		mcp.Description("The caller's phone number for this call")),
)

var ToolAddTranscript = mcp.NewTool("add_call_transcript",
	mcp.WithDescription(
		"Feed a transcript fragment into a live call session. "+
			"Returns the updated risk assessment for the whole call so far, "+
			"plus an alert if the risk tier escalated."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("The session ID from start_call_session (e.g. 'sess_...')")),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("The transcript fragment to add")),
	mcp.WithNumber("amount",
		mcp.Description("Money amount mentioned in this fragment, if any")),
)

var ToolEndSession = mcp.NewTool("end_call_session",
	mcp.WithDescription(
		"Close a live call session. Returns the final session state including "+
			"the worst risk assessment seen during the call."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("The session ID to close")),
)

var ToolMatchVoice = mcp.NewTool("match_voice",
	mcp.WithDescription(
		"Compare a voice sample against ScamShield's database of known voiceprints. "+
			"Reports the closest matches with similarity scores and warns if the voice "+
			"belongs to a flagged scammer."),
	mcp.WithString("audio",
		mcp.Required(),
		mcp.Description("Base64-encoded audio sample of the caller's voice")),
)

var ToolListAlerts = mcp.NewTool("list_alerts",
	mcp.WithDescription(
		"List scam alerts raised during live call sessions, newest first. "+
			"Each alert records the session, the risk tier reached, and the assessment that triggered it."),
	mcp.WithString("user_id",
		mcp.Description("Filter alerts for a specific user (defaults to the API key's owner)")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of alerts to return (default 20)")),
)

var ToolRiskStats = mcp.NewTool("get_risk_stats",
	mcp.WithDescription(
		"Get aggregate ScamShield statistics: how many assessments landed in each risk tier."),
)
