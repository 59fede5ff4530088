package models

import "time"

type PageType string

const (
	PageTypeProduct     PageType = "PRODUCT"
	PageTypeJunk        PageType = "JUNK"
	PageTypeUnavailable PageType = "UNAVAILABLE"
	PageTypeUnreachable PageType = "UNREACHABLE"
)

// Page is a frontier entry: a candidate product page of a domain.
type Page struct {
	URL          string     `json:"url"`
	Domain       string     `json:"domain"`
	Title        string     `json:"title,omitempty"`
	CanonicalURL string     `json:"canonical_url,omitempty"`
	Type         PageType   `json:"type,omitempty"`
	RetrievedAt  *time.Time `json:"retrieved_at,omitempty"`
	LastJobID    string     `json:"last_job_id,omitempty"`
}
