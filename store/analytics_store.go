// api/store/analytics_store.go
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"washday/api/database"
	"washday/api/models"
	"washday/api/utils"
)

type AnalyticsStore struct {
	DB *database.ClickHouseClient
}

type EventTypeCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{
		DB: chClient,
	}
}

func (s *AnalyticsStore) InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_type, user_id, session_id, timestamp, page_path, referrer, user_agent,
			ip_address, duration_ms, location, event_data
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.EventType,
			event.UserID,
			event.SessionID,
			event.Timestamp,
			event.PagePath,
			event.Referrer,
			event.UserAgent,
			event.IPAddress,
			event.DurationMs,
			event.Location,
			string(event.EventData),
		)
		if err != nil {
			log.Printf("Error appending event to batch (EventID: %s): %v", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Successfully inserted %d analytics events.", len(events))
	return nil
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []interface{}{start, end}

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM analytics_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []EventTypeCountByTime
	for rows.Next() {
		var (
			timeBucket    time.Time
			count         uint64
			eventTypeDB   string
			currentResult EventTypeCountByTime
		)

		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventTypeDB); err != nil {
				log.Printf("Error scanning row for event counts over time (with type filter): %v", err)
				continue
			}
			currentResult.EventType = &eventTypeDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				log.Printf("Error scanning row for event counts over time (no type filter): %v", err)
				continue
			}
		}

		currentResult.Time = timeBucket
		currentResult.Count = count
		results = append(results, currentResult)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}

	return results, nil
}

// GetScrollDepthFunnel counts scroll milestones for a page. Every milestone is
// present in the result, in funnel order, even when its count is zero.
func (s *AnalyticsStore) GetScrollDepthFunnel(ctx context.Context, pagePath string, start, end time.Time) ([]models.ThresholdCount, error) {
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT event_type, count() AS total
		FROM analytics_events
		WHERE startsWith(event_type, 'scroll_') AND page_path = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY event_type
	`, pagePath, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query scroll depth funnel: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64, len(models.ScrollDepthEventTypes))
	for rows.Next() {
		var eventType string
		var total uint64
		if err := rows.Scan(&eventType, &total); err != nil {
			log.Printf("Error scanning row for scroll depth funnel: %v", err)
			continue
		}
		counts[eventType] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for scroll depth funnel: %w", err)
	}

	results := make([]models.ThresholdCount, 0, len(models.ScrollDepthEventTypes))
	for _, eventType := range models.ScrollDepthEventTypes {
		results = append(results, models.ThresholdCount{EventType: eventType, Count: counts[eventType]})
	}
	return results, nil
}

// GetSectionViews counts section_viewed events per section label.
func (s *AnalyticsStore) GetSectionViews(ctx context.Context, start, end time.Time) ([]models.SectionViewCount, error) {
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT JSONExtractString(event_data, 'section') AS section, count() AS views
		FROM analytics_events
		WHERE event_type = 'section_viewed' AND timestamp >= ? AND timestamp <= ?
		GROUP BY section
		ORDER BY views DESC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query section views: %w", err)
	}
	defer rows.Close()

	var results []models.SectionViewCount
	for rows.Next() {
		var row models.SectionViewCount
		if err := rows.Scan(&row.Section, &row.Count); err != nil {
			log.Printf("Error scanning row for section views: %v", err)
			continue
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for section views: %w", err)
	}

	return results, nil
}

func (s *AnalyticsStore) GetTopNPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT page_path, count() as view_count
		FROM analytics_events
		WHERE event_type = 'page_view' AND timestamp >= ? AND timestamp <= ?
		GROUP BY page_path
		ORDER BY view_count DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top page paths: %w", err)
	}
	defer rows.Close()

	var results []models.TopPathResult
	for rows.Next() {
		var pagePath string
		var count uint64
		if err := rows.Scan(&pagePath, &count); err != nil {
			log.Printf("Error scanning row for top page paths: %v", err)
			continue
		}
		results = append(results, models.TopPathResult{
			PagePath: pagePath,
			Count:    count,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top page paths: %w", err)
	}

	return results, nil
}
