// CopySentry MCP server. Speaks MCP over stdio and proxies tool calls
// to a running CopySentry API so LLM agents can triage alerts.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/copysentry/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL: getenv("COPYSENTRY_API_URL", "http://localhost:8080"),
		APIKey: os.Getenv("COPYSENTRY_API_KEY"),
	}

	if err := server.ServeStdio(mcpserver.NewMCPServer(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
