// api/handlers/track_handlers.go
package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"washday/api/metrics"
	"washday/api/middleware"
	"washday/api/models"
	"washday/api/store"
	"washday/api/utils"
)

// EventStore is the analytics storage the collector and stats endpoints use.
type EventStore interface {
	InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]store.EventTypeCountByTime, error)
	GetScrollDepthFunnel(ctx context.Context, pagePath string, start, end time.Time) ([]models.ThresholdCount, error)
	GetSectionViews(ctx context.Context, start, end time.Time) ([]models.SectionViewCount, error)
	GetTopNPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error)
}

var _ EventStore = (*store.AnalyticsStore)(nil)

// maxBatchSize bounds how many events one /track request may carry.
const maxBatchSize = 500

type AnalyticsHandlers struct {
	AnalyticsStore EventStore
	Metrics        *metrics.Metrics
}

func NewAnalyticsHandlers(s EventStore, m *metrics.Metrics) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		AnalyticsStore: s,
		Metrics:        m,
	}
}

func (h *AnalyticsHandlers) TrackEvent(c *gin.Context) {
	// The site sends an array of AnalyticsEvent objects.
	var incomingEvents []models.AnalyticsEvent
	if err := c.ShouldBindJSON(&incomingEvents); err != nil {
		log.Printf("Error binding incoming analytics JSON: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if len(incomingEvents) == 0 {
		c.Status(http.StatusOK)
		return
	}
	if len(incomingEvents) > maxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("At most %d events per request", maxBatchSize)})
		return
	}

	actor, hasActor := middleware.ActorFromContext(c)
	now := time.Now().UTC()

	eventsToInsert := make([]models.AnalyticsEvent, 0, len(incomingEvents))
	for _, event := range incomingEvents {
		if event.EventType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "eventType is required for every event"})
			return
		}
		event.EventID = uuid.New().String()
		event.IPAddress = c.ClientIP()
		if event.UserAgent == "" {
			event.UserAgent = c.Request.UserAgent()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = now
		}
		event.PagePath = utils.NormalizePagePath(event.PagePath)
		if event.UserID == "" && hasActor {
			event.UserID = actor.ID
		}

		eventsToInsert = append(eventsToInsert, event)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.AnalyticsStore.InsertAnalyticsEvents(ctx, eventsToInsert); err != nil {
		log.Printf("Error inserting analytics events into ClickHouse: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record analytics events"})
		return
	}

	if h.Metrics != nil {
		for _, event := range eventsToInsert {
			h.Metrics.EventsIngested.WithLabelValues(event.EventType).Inc()
		}
	}

	c.Status(http.StatusOK)
}

// parseTimeRange reads the optional RFC3339 start/end query parameters,
// defaulting to the last 7 days. It writes the error response itself.
func parseTimeRange(c *gin.Context) (start, end time.Time, ok bool) {
	var err error

	if startParam := c.Query("start"); startParam != "" {
		start, err = time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return time.Time{}, time.Time{}, false
		}
	} else {
		start = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}

	if endParam := c.Query("end"); endParam != "" {
		end, err = time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return time.Time{}, time.Time{}, false
		}
	} else {
		end = time.Now().UTC()
	}

	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'end' must not be before 'start'"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (h *AnalyticsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid interval. Use Minute, Hour, Day, Week, Month, Quarter or Year"})
		return
	}

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.AnalyticsStore.GetEventCountsOverTime(ctx, interval, start, end, c.Query("eventType"))
	if err != nil {
		log.Printf("Error getting event counts over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetScrollDepth(c *gin.Context) {
	page := c.Query("page")
	if page == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page query parameter is required (e.g., '/pricing')"})
		return
	}
	page = utils.NormalizePagePath(page)

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	funnel, err := h.AnalyticsStore.GetScrollDepthFunnel(ctx, page, start, end)
	if err != nil {
		log.Printf("Error getting scroll depth funnel for %s: %v", page, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve scroll depth statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"page":      page,
		"startDate": start.Format(time.RFC3339),
		"endDate":   end.Format(time.RFC3339),
		"funnel":    funnel,
	})
}

func (h *AnalyticsHandlers) GetSectionViews(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.AnalyticsStore.GetSectionViews(ctx, start, end)
	if err != nil {
		log.Printf("Error getting section views: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve section view statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetTopNPagePaths(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	if limitParam := c.Query("limit"); limitParam != "" {
		parsedLimit, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsedLimit == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsedLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.AnalyticsStore.GetTopNPagePaths(ctx, start, end, limit)
	if err != nil {
		log.Printf("Error getting top page paths: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top page paths statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}
