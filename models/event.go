// api/models/event.go
package models

import (
	"encoding/json"
	"time"
)

// AnalyticsEvent represents a single analytics event as it travels from the
// site to the collector and into ClickHouse.
type AnalyticsEvent struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	UserID     string          `json:"userId"`
	SessionID  string          `json:"sessionId"`
	Timestamp  time.Time       `json:"timestamp"`
	PagePath   string          `json:"pagePath"`
	Referrer   string          `json:"referrer"`
	UserAgent  string          `json:"userAgent"`
	IPAddress  string          `json:"ipAddress"`
	DurationMs int64           `json:"durationMs"`
	Location   string          `json:"location,omitempty"`
	EventData  json.RawMessage `json:"eventData,omitempty"`
}

// Actor is the minimal identity attached to events when a customer session exists.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// AnonymousActor is reported when no customer session exists.
var AnonymousActor = Actor{ID: "anonymous", Name: "Anonymous"}

// Scroll-depth milestone event types, shared by the tracker that emits them
// and the funnel query that counts them. The last fires at 90%.
const (
	EventScroll25  = "scroll_25_percent"
	EventScroll50  = "scroll_50_percent"
	EventScroll75  = "scroll_75_percent"
	EventScroll100 = "scroll_100_percent"
)

// ScrollDepthEventTypes lists the milestones in funnel order.
var ScrollDepthEventTypes = []string{EventScroll25, EventScroll50, EventScroll75, EventScroll100}

type TopPathResult struct {
	PagePath string `json:"pagePath"`
	Count    uint64 `json:"count"`
}

// ThresholdCount is one row of a scroll-depth funnel.
type ThresholdCount struct {
	EventType string `json:"eventType"`
	Count     uint64 `json:"count"`
}

type SectionViewCount struct {
	Section string `json:"section"`
	Count   uint64 `json:"count"`
}
