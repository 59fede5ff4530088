package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
	AvailabilityUnknown     Availability = ""
)

// PricePoint is one observed offer. It is never modified once stored; a book
// accumulates them as an append-only history.
type PricePoint struct {
	ID           string          `json:"id"`
	NominalValue decimal.Decimal `json:"nominal_value"`
	Currency     string          `json:"currency"`
	RetrievedAt  time.Time       `json:"retrieved_at"`
	URL          string          `json:"url"`
	Site         string          `json:"site"`
	PageTitle    string          `json:"page_title,omitempty"`
	Availability Availability    `json:"availability,omitempty"`
}
