package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all CopySentry tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("copysentry", "1.0.0")
	client := NewCopysentryClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetSummary, h.HandleGetSummary)
	s.AddTool(ToolListVisitors, h.HandleListVisitors)
	s.AddTool(ToolGetVisitor, h.HandleGetVisitor)
	s.AddTool(ToolListAlerts, h.HandleListAlerts)
	s.AddTool(ToolUpdateAlert, h.HandleUpdateAlert)
	s.AddTool(ToolGetActivity, h.HandleGetActivity)

	return s
}
