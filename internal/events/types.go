package events

import "github.com/loudmantrade/RealEstatesAntiFraud/internal/listing"

// RawListingEvent is the payload carried on listings.raw: a listing as
// a source plugin fetched it, before any normalization.
type RawListingEvent struct {
	Listing listing.Listing `json:"listing"`
}

// ProcessedListingEvent is the payload carried on listings.processed:
// a listing that has been through the full processing pipeline.
type ProcessedListingEvent struct {
	Listing listing.Listing `json:"listing"`
	Score   float64         `json:"score"`
	Level   string          `json:"level"`
}

// FraudDetectedEvent is the payload carried on fraud.detected,
// emitted alongside ProcessedListingEvent whenever the risk level
// is fraud.
type FraudDetectedEvent struct {
	ListingID string  `json:"listing_id"`
	Score     float64 `json:"score"`
	Level     string  `json:"level"`
	Signals   []SignalPayload `json:"signals"`
}

// SignalPayload mirrors plugin.Signal without importing the plugin
// package, to keep events a leaf in the dependency graph.
type SignalPayload struct {
	Code       string  `json:"code"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
	PluginID   string  `json:"plugin_id"`
}

// ProcessingFailedEvent is the payload carried on processing.failed
// when the pipeline aborts fail-fast on a plugin error.
type ProcessingFailedEvent struct {
	ListingID string `json:"listing_id"`
	PluginID  string `json:"plugin_id"`
	Reason    string `json:"reason"`
}
