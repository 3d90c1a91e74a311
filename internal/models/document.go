package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded tax document together with its extraction result.
type Document struct {
	ID          uuid.UUID        `json:"id"`
	Tenant      string           `json:"tenant"`
	Filename    string           `json:"filename"`
	ContentType string           `json:"contentType"`
	ObjectPath  string           `json:"objectPath,omitempty"` // bucket/object, empty when storage is off
	Context     string           `json:"context,omitempty"`
	Result      ExtractionResult `json:"result"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Report is a narrative tax report generated from a document's record.
type Report struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"documentId"`
	Tenant     string    `json:"tenant"`
	Provider   string    `json:"provider,omitempty"` // empty for the template fallback
	Content    string    `json:"content"`
	ObjectPath string    `json:"objectPath,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ExtractRequest is the JSON body of a text extraction call.
type ExtractRequest struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// ProcessResponse wraps a processed document with timing metadata.
type ProcessResponse struct {
	Success  bool      `json:"success"`
	Document *Document `json:"document,omitempty"`
	Error    string    `json:"error,omitempty"`

	ParseDuration   float64 `json:"parseDuration,omitempty"`   // seconds
	ExtractDuration float64 `json:"extractDuration,omitempty"` // seconds
	TotalDuration   float64 `json:"totalDuration"`
}
