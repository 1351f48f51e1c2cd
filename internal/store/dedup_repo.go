// Package store provides the DedupRepo interface for inbound update deduplication.
package store

import (
	"time"
)

// DedupRecord represents an inbound update deduplication record.
type DedupRecord struct {
	UpdateID       int64      `json:"update_id"`
	ConversationID int64      `json:"conversation_id"`
	ReceivedAt     time.Time  `json:"received_at"`
	ProcessedAt    *time.Time `json:"processed_at"`
}

// DedupRepo defines the interface for inbound update deduplication.
// Telegram redelivers webhook updates that were not acknowledged in time.
type DedupRepo interface {
	// IsDuplicate checks if an update ID has already been recorded.
	IsDuplicate(updateID int64) (bool, error)

	// RecordInbound inserts a new inbound update record. Returns false if the
	// update was already recorded (duplicate).
	RecordInbound(updateID, conversationID int64) (bool, error)

	// MarkProcessed sets the processed_at timestamp for an update.
	MarkProcessed(updateID int64) error
}
