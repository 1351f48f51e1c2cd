package store

import (
	"fmt"
	"time"
)

// Compile-time checks that both SQL backends implement DedupRepo.
var (
	_ DedupRepo = (*SQLiteStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
)

func (b *sqlBackend) IsDuplicate(updateID int64) (bool, error) {
	return b.exists(`SELECT 1 FROM inbound_dedup WHERE update_id = ?`, updateID)
}

func (b *sqlBackend) RecordInbound(updateID, conversationID int64) (bool, error) {
	res, err := b.db.Exec(b.q(`
		INSERT INTO inbound_dedup (update_id, conversation_id, received_at) VALUES (?, ?, ?)
		ON CONFLICT (update_id) DO NOTHING`), updateID, conversationID, time.Now())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (b *sqlBackend) MarkProcessed(updateID int64) error {
	_, err := b.db.Exec(b.q(`UPDATE inbound_dedup SET processed_at = ? WHERE update_id = ?`), time.Now(), updateID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
