package models

import "time"

// Service is one entry of the laundry service catalog shown on the
// landing and detail pages.
type Service struct {
	ID              int       `json:"id" db:"id"`
	Slug            string    `json:"slug" db:"slug"`
	Name            string    `json:"name" db:"name"`
	Description     string    `json:"description" db:"description"`
	PriceCents      int64     `json:"priceCents" db:"price_cents"`
	TurnaroundHours int       `json:"turnaroundHours" db:"turnaround_hours"`
	Position        int       `json:"position" db:"position"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
