package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the CopySentry MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetSummary = mcp.NewTool("get_summary",
	mcp.WithDescription(
		"Get the CopySentry monitoring overview: total visitors tracked, visits today, "+
			"critical threats, high-risk visitors, unreviewed alerts, and the current top threats. "+
			"Use this first to understand the overall state of a storefront."),
	mcp.WithString("store_id",
		mcp.Required(),
		mcp.Description("The storefront to summarize")),
)

var ToolListVisitors = mcp.NewTool("list_visitors",
	mcp.WithDescription(
		"Browse tracked visitor profiles sorted by risk score, highest first. "+
			"Each profile shows session count, pages viewed, peak risk score, and risk factors."),
	mcp.WithString("store_id",
		mcp.Required(),
		mcp.Description("The storefront whose visitors to list")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of visitors to return (default 20)")),
	mcp.WithNumber("offset",
		mcp.Description("Number of visitors to skip, for paging through results")),
)

var ToolGetVisitor = mcp.NewTool("get_visitor",
	mcp.WithDescription(
		"Get the full profile for one visitor: risk score and level, detected signals "+
			"(bot, VPN, tampering, devtools, ...), pages viewed, a recommended action, "+
			"and their recent visit history. Use this to investigate a suspicious visitor."),
	mcp.WithString("store_id",
		mcp.Required(),
		mcp.Description("The storefront the visitor was seen on")),
	mcp.WithString("visitor_id",
		mcp.Required(),
		mcp.Description("The visitor's fingerprint ID")),
)

var ToolListAlerts = mcp.NewTool("list_alerts",
	mcp.WithDescription(
		"List risk alerts raised for high-scoring visits, newest first. "+
			"Filter by triage status to see what still needs review."),
	mcp.WithString("store_id",
		mcp.Required(),
		mcp.Description("The storefront whose alerts to list")),
	mcp.WithString("status",
		mcp.Description("Filter by triage status"),
		mcp.Enum("new", "reviewed", "dismissed")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of alerts to return (default 20)")),
)

var ToolUpdateAlert = mcp.NewTool("update_alert",
	mcp.WithDescription(
		"Move an alert through triage: mark it reviewed, or dismiss it. "+
			"New alerts can be reviewed or dismissed; reviewed alerts can only be dismissed; "+
			"dismissed is terminal."),
	mcp.WithString("alert_id",
		mcp.Required(),
		mcp.Description("The alert ID from a list_alerts result")),
	mcp.WithString("status",
		mcp.Required(),
		mcp.Description("The new triage status"),
		mcp.Enum("reviewed", "dismissed")),
)

var ToolGetActivity = mcp.NewTool("get_activity",
	mcp.WithDescription(
		"Get the live visit feed, newest first. Shows each visit's path, visitor, "+
			"and risk score. Use the returned cursor to page further back in time."),
	mcp.WithString("store_id",
		mcp.Required(),
		mcp.Description("The storefront whose feed to read")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of visits to return (default 20)")),
	mcp.WithString("cursor",
		mcp.Description("Opaque paging cursor from a previous get_activity result")),
)
