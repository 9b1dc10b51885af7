// Package dashboard provides the read-only JSON query surface consumed
// by the operator UI, plus the alert triage endpoint.
package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/copysentry/internal/alerts"
	"github.com/mbd888/copysentry/internal/logging"
	"github.com/mbd888/copysentry/internal/pagination"
	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/session"
	"github.com/mbd888/copysentry/internal/visitor"
)

// Listing limits
const (
	defaultVisitorLimit = 50
	maxVisitorLimit     = 200
	visitorDetailVisits = 50
	defaultAlertLimit   = 50
	maxAlertLimit       = 200
	defaultActivityFeed = 20
	maxActivityFeed     = 100
	summaryListSize     = 5
)

// Score floors for the summary tiles, aligned with the level thresholds.
const (
	criticalScoreFloor = 60
	highScoreFloor     = 40
)

// Handler provides dashboard API endpoints.
type Handler struct {
	visitors   visitor.Store
	sessions   session.Store
	alertStore alerts.Store
}

// NewHandler creates a new dashboard handler.
func NewHandler(visitors visitor.Store, sessions session.Store, alertStore alerts.Store) *Handler {
	return &Handler{visitors: visitors, sessions: sessions, alertStore: alertStore}
}

// RegisterRoutes sets up dashboard routes under the given group. Every
// read is scoped to one storefront; only the triage transition is
// addressed by alert id alone.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/stores/:store_id/dashboard", h.Summary)
	r.GET("/stores/:store_id/visitors", h.ListVisitors)
	r.GET("/stores/:store_id/visitors/:visitor_id", h.GetVisitor)
	r.GET("/stores/:store_id/alerts", h.ListAlerts)
	r.GET("/stores/:store_id/activity", h.Activity)
	r.PATCH("/alerts/:id", h.UpdateAlertStatus)
}

// Summary returns the store's dashboard overview tiles.
// GET /v1/stores/:store_id/dashboard
func (h *Handler) Summary(c *gin.Context) {
	ctx := c.Request.Context()
	storeID := c.Param("store_id")

	totalVisitors, err := h.visitors.CountAll(ctx, storeID)
	if err != nil {
		h.internalError(c, "summary failed", err)
		return
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	visitsToday, err := h.sessions.CountVisitsSince(ctx, storeID, midnight)
	if err != nil {
		h.internalError(c, "summary failed", err)
		return
	}

	criticalThreats, err := h.visitors.CountWithMinScore(ctx, storeID, criticalScoreFloor)
	if err != nil {
		h.internalError(c, "summary failed", err)
		return
	}
	// The high tile counts the high band only; criticals have their own.
	highRisk, err := h.visitors.CountWithScoreBetween(ctx, storeID, highScoreFloor, criticalScoreFloor)
	if err != nil {
		h.internalError(c, "summary failed", err)
		return
	}

	newAlerts, err := h.alertStore.CountByStatus(ctx, storeID, alerts.StatusNew)
	if err != nil {
		h.internalError(c, "summary failed", err)
		return
	}

	recentVisitors, err := h.visitors.ListRecentlyActive(ctx, storeID, summaryListSize)
	if err != nil {
		h.internalError(c, "summary failed", err)
		return
	}
	topThreats, err := h.visitors.ListTopThreats(ctx, storeID, criticalScoreFloor, summaryListSize)
	if err != nil {
		h.internalError(c, "summary failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalVisitors":    totalVisitors,
		"visitsToday":      visitsToday,
		"criticalThreats":  criticalThreats,
		"highRiskVisitors": highRisk,
		"newAlerts":        newAlerts,
		"recentVisitors":   profilesOrEmpty(recentVisitors),
		"topThreats":       profilesOrEmpty(topThreats),
	})
}

// ListVisitors returns the store's profiles sorted by risk descending.
// GET /v1/stores/:store_id/visitors?limit=&offset=
func (h *Handler) ListVisitors(c *gin.Context) {
	limit := intQuery(c, "limit", defaultVisitorLimit, maxVisitorLimit)
	offset := intQuery(c, "offset", 0, 1<<30)

	profiles, total, err := h.visitors.List(c.Request.Context(), c.Param("store_id"), limit, offset)
	if err != nil {
		h.internalError(c, "visitor list failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"visitors": profilesOrEmpty(profiles),
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetVisitor returns one profile with its recent visit events.
// GET /v1/stores/:store_id/visitors/:visitor_id
func (h *Handler) GetVisitor(c *gin.Context) {
	ctx := c.Request.Context()
	storeID := c.Param("store_id")
	visitorID := c.Param("visitor_id")

	p, err := h.visitors.Get(ctx, storeID, visitorID)
	if err != nil {
		if errors.Is(err, visitor.ErrVisitorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "visitor_not_found",
				"message": "No profile exists for this visitor",
			})
			return
		}
		h.internalError(c, "visitor lookup failed", err)
		return
	}

	visits, err := h.sessions.ListVisitsByVisitor(ctx, storeID, visitorID, visitorDetailVisits)
	if err != nil {
		h.internalError(c, "visitor visits lookup failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"visitor":        p,
		"recommendation": risk.RecommendationForLevel(p.RiskLevel),
		"recent_visits":  visitsOrEmpty(visits),
	})
}

// ListAlerts returns the store's alerts newest first, optionally
// filtered by status.
// GET /v1/stores/:store_id/alerts?status=&limit=&offset=
func (h *Handler) ListAlerts(c *gin.Context) {
	var status alerts.Status
	if s := c.Query("status"); s != "" {
		status = alerts.Status(s)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_status",
				"message": "Status must be one of: new, reviewed, dismissed",
			})
			return
		}
	}
	limit := intQuery(c, "limit", defaultAlertLimit, maxAlertLimit)
	offset := intQuery(c, "offset", 0, 1<<30)

	list, err := h.alertStore.List(c.Request.Context(), c.Param("store_id"), status, limit, offset)
	if err != nil {
		h.internalError(c, "alert list failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alertsOrEmpty(list),
		"limit":  limit,
		"offset": offset,
	})
}

type updateAlertRequest struct {
	Status string `json:"status"`
}

// UpdateAlertStatus applies an operator triage transition.
// PATCH /v1/alerts/:id
func (h *Handler) UpdateAlertStatus(c *gin.Context) {
	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain a 'status' field",
		})
		return
	}

	next := alerts.Status(req.Status)
	if !next.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": "Status must be one of: new, reviewed, dismissed",
		})
		return
	}

	updated, err := h.alertStore.UpdateStatus(c.Request.Context(), c.Param("id"), next)
	if err != nil {
		switch {
		case errors.Is(err, alerts.ErrAlertNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "alert_not_found",
				"message": "No alert exists with this id",
			})
		case errors.Is(err, alerts.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_transition",
				"message": "Alert status cannot move backwards",
			})
		default:
			h.internalError(c, "alert update failed", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"alert": updated})
}

// Activity returns the store's recency-ordered visit feed with an
// opaque cursor.
// GET /v1/stores/:store_id/activity?cursor=&limit=
func (h *Handler) Activity(c *gin.Context) {
	limit := intQuery(c, "limit", defaultActivityFeed, maxActivityFeed)

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Cursor is malformed",
		})
		return
	}

	// Fetch one extra row to decide has_more.
	visits, err := h.sessions.ListRecentVisits(c.Request.Context(), c.Param("store_id"), cursor, limit+1)
	if err != nil {
		h.internalError(c, "activity feed failed", err)
		return
	}

	page, next, hasMore := pagination.ComputePage(visits, limit, func(v *session.VisitEvent) (time.Time, string) {
		return v.Timestamp, v.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"activity":    visitsOrEmpty(page),
		"next_cursor": next,
		"has_more":    hasMore,
	})
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	logging.L(c.Request.Context()).Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "The request could not be completed",
	})
}

func intQuery(c *gin.Context, name string, def, max int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	if parsed > max {
		return max
	}
	return parsed
}

// Empty-slice helpers keep JSON arrays as [] instead of null.

func profilesOrEmpty(in []*visitor.Profile) []*visitor.Profile {
	if in == nil {
		return []*visitor.Profile{}
	}
	return in
}

func visitsOrEmpty(in []*session.VisitEvent) []*session.VisitEvent {
	if in == nil {
		return []*session.VisitEvent{}
	}
	return in
}

func alertsOrEmpty(in []*alerts.Alert) []*alerts.Alert {
	if in == nil {
		return []*alerts.Alert{}
	}
	return in
}
