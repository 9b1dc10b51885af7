package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *CopysentryClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *CopysentryClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetSummary returns the monitoring overview.
func (h *Handlers) HandleGetSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storeID := req.GetString("store_id", "")
	if storeID == "" {
		return mcp.NewToolResultError("store_id is required"), nil
	}

	raw, err := h.client.GetSummary(ctx, storeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get summary: %v", err)), nil
	}

	text, err := formatSummary(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse summary: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListVisitors lists tracked visitor profiles.
func (h *Handlers) HandleListVisitors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storeID := req.GetString("store_id", "")
	if storeID == "" {
		return mcp.NewToolResultError("store_id is required"), nil
	}
	limit := req.GetInt("limit", 20)
	offset := req.GetInt("offset", 0)

	raw, err := h.client.ListVisitors(ctx, storeID, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list visitors: %v", err)), nil
	}

	text, err := formatVisitorList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse visitors: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetVisitor returns one visitor profile with recent visits.
func (h *Handlers) HandleGetVisitor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storeID := req.GetString("store_id", "")
	if storeID == "" {
		return mcp.NewToolResultError("store_id is required"), nil
	}
	visitorID := req.GetString("visitor_id", "")
	if visitorID == "" {
		return mcp.NewToolResultError("visitor_id is required"), nil
	}

	raw, err := h.client.GetVisitor(ctx, storeID, visitorID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get visitor: %v", err)), nil
	}

	text, err := formatVisitorDetail(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse visitor: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListAlerts lists risk alerts.
func (h *Handlers) HandleListAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storeID := req.GetString("store_id", "")
	if storeID == "" {
		return mcp.NewToolResultError("store_id is required"), nil
	}
	status := req.GetString("status", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListAlerts(ctx, storeID, status, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list alerts: %v", err)), nil
	}

	text, err := formatAlertList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alerts: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleUpdateAlert applies a triage transition to an alert.
func (h *Handlers) HandleUpdateAlert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	alertID := req.GetString("alert_id", "")
	if alertID == "" {
		return mcp.NewToolResultError("alert_id is required"), nil
	}
	status := req.GetString("status", "")
	if status != "reviewed" && status != "dismissed" {
		return mcp.NewToolResultError("status must be 'reviewed' or 'dismissed'"), nil
	}

	raw, err := h.client.UpdateAlertStatus(ctx, alertID, status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update alert: %v", err)), nil
	}

	var resp struct {
		Alert alertInfo `json:"alert"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alert: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Alert %s is now %s.\nVisitor: %s (store %s), score %d (%s)",
		resp.Alert.ID, resp.Alert.Status,
		resp.Alert.VisitorID, resp.Alert.StoreID,
		resp.Alert.Score, resp.Alert.Level)), nil
}

// HandleGetActivity returns the recent visit feed.
func (h *Handlers) HandleGetActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storeID := req.GetString("store_id", "")
	if storeID == "" {
		return mcp.NewToolResultError("store_id is required"), nil
	}
	limit := req.GetInt("limit", 20)
	cursor := req.GetString("cursor", "")

	raw, err := h.client.GetActivity(ctx, storeID, limit, cursor)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get activity: %v", err)), nil
	}

	text, err := formatActivity(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse activity: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Response shapes ---

type visitorInfo struct {
	StoreID          string       `json:"store_id"`
	VisitorID        string       `json:"visitor_id"`
	FirstSeen        time.Time    `json:"first_seen"`
	LastSeen         time.Time    `json:"last_seen"`
	SessionCount     int          `json:"session_count"`
	Pages            []string     `json:"pages"`
	HighestRiskScore int          `json:"highest_risk_score"`
	RiskLevel        string       `json:"risk_level"`
	RiskFactors      []factorInfo `json:"risk_factors"`
}

type factorInfo struct {
	Signal   string `json:"signal"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

type alertInfo struct {
	ID        string       `json:"id"`
	StoreID   string       `json:"store_id"`
	VisitorID string       `json:"visitor_id"`
	Score     int          `json:"score"`
	Level     string       `json:"level"`
	Factors   []factorInfo `json:"factors"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

type visitInfo struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"visitor_id"`
	StoreID   string    `json:"store_id"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Risk      struct {
		Score int    `json:"score"`
		Level string `json:"level"`
	} `json:"risk"`
}

// --- Formatting helpers ---

func formatSummary(raw json.RawMessage) (string, error) {
	var s struct {
		TotalVisitors    int           `json:"totalVisitors"`
		VisitsToday      int           `json:"visitsToday"`
		CriticalThreats  int           `json:"criticalThreats"`
		HighRiskVisitors int           `json:"highRiskVisitors"`
		NewAlerts        int           `json:"newAlerts"`
		TopThreats       []visitorInfo `json:"topThreats"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("CopySentry overview:\n")
	fmt.Fprintf(&sb, "  Visitors tracked: %d\n", s.TotalVisitors)
	fmt.Fprintf(&sb, "  Visits today: %d\n", s.VisitsToday)
	fmt.Fprintf(&sb, "  Critical threats: %d\n", s.CriticalThreats)
	fmt.Fprintf(&sb, "  High-risk visitors: %d\n", s.HighRiskVisitors)
	fmt.Fprintf(&sb, "  Alerts awaiting review: %d\n", s.NewAlerts)

	if len(s.TopThreats) > 0 {
		sb.WriteString("\nTop threats:\n")
		for _, v := range s.TopThreats {
			fmt.Fprintf(&sb, "  %s (store %s): score %d (%s), %d sessions\n",
				v.VisitorID, v.StoreID, v.HighestRiskScore, v.RiskLevel, v.SessionCount)
		}
	}
	return sb.String(), nil
}

func formatVisitorList(raw json.RawMessage) (string, error) {
	var resp struct {
		Visitors []visitorInfo `json:"visitors"`
		Total    int           `json:"total"`
		Offset   int           `json:"offset"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Visitors) == 0 {
		return "No visitors tracked yet.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Showing %d of %d visitor(s), highest risk first:\n\n", len(resp.Visitors), resp.Total)
	for i, v := range resp.Visitors {
		fmt.Fprintf(&sb, "%d. %s (store %s)\n", resp.Offset+i+1, v.VisitorID, v.StoreID)
		fmt.Fprintf(&sb, "   Risk: %d (%s) | Sessions: %d | Pages: %d\n",
			v.HighestRiskScore, v.RiskLevel, v.SessionCount, len(v.Pages))
		fmt.Fprintf(&sb, "   Last seen: %s\n", v.LastSeen.Format(time.RFC3339))
	}
	return sb.String(), nil
}

func formatVisitorDetail(raw json.RawMessage) (string, error) {
	var resp struct {
		Visitor        visitorInfo `json:"visitor"`
		Recommendation string      `json:"recommendation"`
		RecentVisits   []visitInfo `json:"recent_visits"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	v := resp.Visitor

	var sb strings.Builder
	fmt.Fprintf(&sb, "Visitor %s on store %s:\n", v.VisitorID, v.StoreID)
	fmt.Fprintf(&sb, "  Risk: %d (%s)\n", v.HighestRiskScore, v.RiskLevel)
	fmt.Fprintf(&sb, "  Sessions: %d | Pages viewed: %d\n", v.SessionCount, len(v.Pages))
	fmt.Fprintf(&sb, "  First seen: %s\n", v.FirstSeen.Format(time.RFC3339))
	fmt.Fprintf(&sb, "  Last seen: %s\n", v.LastSeen.Format(time.RFC3339))

	if len(v.RiskFactors) > 0 {
		sb.WriteString("\nRisk factors:\n")
		for _, f := range v.RiskFactors {
			fmt.Fprintf(&sb, "  [%s] %s: %s\n", f.Severity, f.Signal, f.Detail)
		}
	}

	if resp.Recommendation != "" {
		fmt.Fprintf(&sb, "\nRecommendation: %s\n", resp.Recommendation)
	}

	if len(resp.RecentVisits) > 0 {
		sb.WriteString("\nRecent visits:\n")
		for _, visit := range resp.RecentVisits {
			fmt.Fprintf(&sb, "  %s  %s (score %d)\n",
				visit.Timestamp.Format(time.RFC3339), visit.Path, visit.Risk.Score)
		}
	}
	return sb.String(), nil
}

func formatAlertList(raw json.RawMessage) (string, error) {
	var resp struct {
		Alerts []alertInfo `json:"alerts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Alerts) == 0 {
		return "No alerts found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d alert(s), newest first:\n\n", len(resp.Alerts))
	for i, a := range resp.Alerts {
		fmt.Fprintf(&sb, "%d. %s [%s]\n", i+1, a.ID, a.Status)
		fmt.Fprintf(&sb, "   Visitor: %s (store %s) | Score: %d (%s)\n",
			a.VisitorID, a.StoreID, a.Score, a.Level)
		fmt.Fprintf(&sb, "   Raised: %s\n", a.CreatedAt.Format(time.RFC3339))
		if len(a.Factors) > 0 {
			signals := make([]string, 0, len(a.Factors))
			for _, f := range a.Factors {
				signals = append(signals, f.Signal)
			}
			fmt.Fprintf(&sb, "   Signals: %s\n", strings.Join(signals, ", "))
		}
	}
	return sb.String(), nil
}

func formatActivity(raw json.RawMessage) (string, error) {
	var resp struct {
		Activity   []visitInfo `json:"activity"`
		NextCursor string      `json:"next_cursor"`
		HasMore    bool        `json:"has_more"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Activity) == 0 {
		return "No recent activity.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Last %d visit(s):\n\n", len(resp.Activity))
	for _, v := range resp.Activity {
		fmt.Fprintf(&sb, "%s  %s viewed %s on %s (score %d, %s)\n",
			v.Timestamp.Format(time.RFC3339), v.VisitorID, v.Path, v.StoreID,
			v.Risk.Score, v.Risk.Level)
	}
	if resp.HasMore {
		fmt.Fprintf(&sb, "\nMore available. Pass cursor %q to page further back.\n", resp.NextCursor)
	}
	return sb.String(), nil
}
