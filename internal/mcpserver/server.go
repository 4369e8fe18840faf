package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all ScamShield tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("scamshield", "1.0.0")
	client := NewScamShieldClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolClassifyCall, h.HandleClassifyCall)
	s.AddTool(ToolCheckNumber, h.HandleCheckNumber)
	s.AddTool(ToolStartSession, h.HandleStartSession)
	s.AddTool(ToolAddTranscript, h.HandleAddTranscript)
	s.AddTool(ToolEndSession, h.HandleEndSession)
	s.AddTool(ToolMatchVoice, h.HandleMatchVoice)
	s.AddTool(ToolListAlerts, h.HandleListAlerts)
	s.AddTool(ToolRiskStats, h.HandleRiskStats)

	return s
}
