package models

import "time"

// PriceSnapshot is one symbol's price as of a single broadcast tick.
// Values are replaced whole, never merged field by field.
type PriceSnapshot struct {
	Symbol        string    `json:"symbol"`
	CurrentPrice  float64   `json:"currentPrice"`
	ChangePercent float64   `json:"changePercent"`
	LastUpdated   time.Time `json:"lastUpdated"`
}
