package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redmadres/danabot/internal/models"
)

// sqlBackend holds the queries shared by the SQLite and PostgreSQL stores.
// Queries are written with '?' placeholders and rebound for PostgreSQL.
type sqlBackend struct {
	db       *sql.DB
	name     string
	postgres bool
}

// q rewrites '?' placeholders into '$n' when talking to PostgreSQL.
func (b *sqlBackend) q(query string) string {
	if !b.postgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (b *sqlBackend) ReadSession(conversationID int64) (*models.Session, error) {
	var data []byte
	err := b.db.QueryRow(b.q(`SELECT session_data FROM sessions WHERE conversation_id = ?`), conversationID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug(b.name+" ReadSession not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error(b.name+" ReadSession failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to read session %d: %w", conversationID, err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		slog.Error(b.name+" ReadSession JSON unmarshal failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to decode session %d: %w", conversationID, err)
	}
	session.Normalize()
	return &session, nil
}

func (b *sqlBackend) WriteSession(session models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %d: %w", session.ConversationID, err)
	}
	_, err = b.db.Exec(b.q(`
		INSERT INTO sessions (conversation_id, session_data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (conversation_id) DO UPDATE SET session_data = excluded.session_data, updated_at = excluded.updated_at`),
		session.ConversationID, string(data), time.Now())
	if err != nil {
		slog.Error(b.name+" WriteSession failed", "error", err, "conversationID", session.ConversationID)
		return fmt.Errorf("failed to write session %d: %w", session.ConversationID, err)
	}
	slog.Debug(b.name+" WriteSession succeeded", "conversationID", session.ConversationID, "role", session.Role, "form", session.ActiveForm)
	return nil
}

func (b *sqlBackend) DeleteSession(conversationID int64) error {
	if _, err := b.db.Exec(b.q(`DELETE FROM sessions WHERE conversation_id = ?`), conversationID); err != nil {
		slog.Error(b.name+" DeleteSession failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete session %d: %w", conversationID, err)
	}
	return nil
}

func (b *sqlBackend) CreateMother(m models.Mother) (bool, error) {
	now := time.Now()
	res, err := b.db.Exec(b.q(`
		INSERT INTO mothers (telegram_id, username, full_name, phone, address, town, postal_code, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO NOTHING`),
		m.TelegramID, nilIfEmpty(m.Username), m.FullName, m.Phone, m.Address, m.Town, m.PostalCode, m.Description, now, now)
	if err != nil {
		slog.Error(b.name+" CreateMother failed", "error", err, "telegramID", m.TelegramID)
		return false, fmt.Errorf("failed to insert mother %d: %w", m.TelegramID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mother rows affected check failed: %w", err)
	}
	slog.Debug(b.name+" CreateMother", "telegramID", m.TelegramID, "created", n > 0)
	return n > 0, nil
}

func (b *sqlBackend) GetMother(telegramID int64) (*models.Mother, error) {
	var m models.Mother
	var username sql.NullString
	err := b.db.QueryRow(b.q(`
		SELECT telegram_id, username, full_name, phone, address, town, postal_code, description, created_at, updated_at
		FROM mothers WHERE telegram_id = ?`), telegramID).Scan(
		&m.TelegramID, &username, &m.FullName, &m.Phone, &m.Address, &m.Town, &m.PostalCode, &m.Description, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug(b.name+" GetMother not found", "telegramID", telegramID)
		return nil, nil
	}
	if err != nil {
		slog.Error(b.name+" GetMother failed", "error", err, "telegramID", telegramID)
		return nil, fmt.Errorf("failed to get mother %d: %w", telegramID, err)
	}
	m.Username = username.String
	return &m, nil
}

func (b *sqlBackend) MotherExists(telegramID int64) (bool, error) {
	return b.exists(`SELECT 1 FROM mothers WHERE telegram_id = ?`, telegramID)
}

// UpdateMotherField updates one whitelisted column of a mother record.
func (b *sqlBackend) UpdateMotherField(telegramID int64, field, value string) error {
	if !models.IsMotherField(field) {
		return fmt.Errorf("%w: %s", models.ErrUnknownField, field)
	}
	return b.updateField("mothers", field, telegramID, value)
}

func (b *sqlBackend) CreateCollaborator(c models.Collaborator) (bool, error) {
	now := time.Now()
	res, err := b.db.Exec(b.q(`
		INSERT INTO collaborators (telegram_id, username, full_name, phone, profession, experience, specialty, license_number, blocked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO NOTHING`),
		c.TelegramID, c.Username, c.FullName, c.Phone, c.Profession, c.Experience, c.Specialty, nilIfEmpty(c.LicenseNumber), c.Blocked, now, now)
	if err != nil {
		slog.Error(b.name+" CreateCollaborator failed", "error", err, "telegramID", c.TelegramID)
		return false, fmt.Errorf("failed to insert collaborator %d: %w", c.TelegramID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("collaborator rows affected check failed: %w", err)
	}
	slog.Debug(b.name+" CreateCollaborator", "telegramID", c.TelegramID, "created", n > 0)
	return n > 0, nil
}

const collaboratorColumns = `telegram_id, username, full_name, phone, profession, experience, specialty, license_number, blocked, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCollaborator(row rowScanner) (models.Collaborator, error) {
	var c models.Collaborator
	var license sql.NullString
	err := row.Scan(&c.TelegramID, &c.Username, &c.FullName, &c.Phone, &c.Profession, &c.Experience,
		&c.Specialty, &license, &c.Blocked, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.LicenseNumber = license.String
	return c, nil
}

func (b *sqlBackend) GetCollaborator(telegramID int64) (*models.Collaborator, error) {
	c, err := scanCollaborator(b.db.QueryRow(b.q(`SELECT `+collaboratorColumns+` FROM collaborators WHERE telegram_id = ?`), telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug(b.name+" GetCollaborator not found", "telegramID", telegramID)
		return nil, nil
	}
	if err != nil {
		slog.Error(b.name+" GetCollaborator failed", "error", err, "telegramID", telegramID)
		return nil, fmt.Errorf("failed to get collaborator %d: %w", telegramID, err)
	}
	return &c, nil
}

func (b *sqlBackend) CollaboratorExists(telegramID int64) (bool, error) {
	return b.exists(`SELECT 1 FROM collaborators WHERE telegram_id = ?`, telegramID)
}

// UpdateCollaboratorField updates one whitelisted column of a collaborator record.
func (b *sqlBackend) UpdateCollaboratorField(telegramID int64, field, value string) error {
	if !models.IsCollaboratorField(field) {
		return fmt.Errorf("%w: %s", models.ErrUnknownField, field)
	}
	return b.updateField("collaborators", field, telegramID, value)
}

func (b *sqlBackend) SetCollaboratorBlocked(telegramID int64, blocked bool) error {
	res, err := b.db.Exec(b.q(`UPDATE collaborators SET blocked = ?, updated_at = ? WHERE telegram_id = ?`), blocked, time.Now(), telegramID)
	if err != nil {
		slog.Error(b.name+" SetCollaboratorBlocked failed", "error", err, "telegramID", telegramID)
		return fmt.Errorf("failed to update collaborator %d: %w", telegramID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	slog.Info(b.name+" SetCollaboratorBlocked", "telegramID", telegramID, "blocked", blocked)
	return nil
}

func (b *sqlBackend) DeleteCollaborator(telegramID int64) error {
	if _, err := b.db.Exec(b.q(`DELETE FROM collaborators WHERE telegram_id = ?`), telegramID); err != nil {
		slog.Error(b.name+" DeleteCollaborator failed", "error", err, "telegramID", telegramID)
		return fmt.Errorf("failed to delete collaborator %d: %w", telegramID, err)
	}
	return nil
}

func (b *sqlBackend) ListCollaborators(offset, limit int) ([]models.Collaborator, error) {
	rows, err := b.db.Query(b.q(`SELECT `+collaboratorColumns+` FROM collaborators ORDER BY full_name, telegram_id LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		slog.Error(b.name+" ListCollaborators query failed", "error", err)
		return nil, fmt.Errorf("failed to query collaborators: %w", err)
	}
	defer rows.Close()

	out := []models.Collaborator{}
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collaborator row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collaborator rows: %w", err)
	}
	return out, nil
}

func (b *sqlBackend) CountCollaborators() (int, error) {
	var n int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM collaborators`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count collaborators: %w", err)
	}
	return n, nil
}

func (b *sqlBackend) GetHelpRequest(id int64) (*models.HelpRequest, error) {
	h, err := scanHelpRequest(b.db.QueryRow(b.q(`SELECT `+helpRequestColumns+` FROM help_requests WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug(b.name+" GetHelpRequest not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error(b.name+" GetHelpRequest failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get help request %d: %w", id, err)
	}

	rows, err := b.db.Query(b.q(`SELECT chat_id, thread_id, message_id FROM broadcast_handles WHERE request_id = ? ORDER BY id`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcast handles for %d: %w", id, err)
	}
	defer rows.Close()
	handles, err := scanHandles(rows)
	if err != nil {
		return nil, err
	}
	h.BroadcastHandles = handles
	return &h, nil
}

const helpRequestColumns = `id, requester_id, urgency, specialty, description, status, claimed_by, claimed_at, created_at`

func scanHelpRequest(row rowScanner) (models.HelpRequest, error) {
	var h models.HelpRequest
	var claimedBy sql.NullInt64
	var claimedAt sql.NullTime
	err := row.Scan(&h.ID, &h.RequesterID, &h.Urgency, &h.Specialty, &h.Description, &h.Status, &claimedBy, &claimedAt, &h.CreatedAt)
	if err != nil {
		return h, err
	}
	if claimedBy.Valid {
		h.ClaimedBy = &claimedBy.Int64
	}
	if claimedAt.Valid {
		h.ClaimedAt = &claimedAt.Time
	}
	return h, nil
}

func scanHandles(rows *sql.Rows) ([]models.BroadcastHandle, error) {
	var handles []models.BroadcastHandle
	for rows.Next() {
		var bh models.BroadcastHandle
		if err := rows.Scan(&bh.Destination.ChatID, &bh.Destination.ThreadID, &bh.MessageID); err != nil {
			return nil, fmt.Errorf("failed to scan broadcast handle: %w", err)
		}
		handles = append(handles, bh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate broadcast handles: %w", err)
	}
	return handles, nil
}

func (b *sqlBackend) ListHelpRequestsByRequester(requesterID int64) ([]models.HelpRequest, error) {
	rows, err := b.db.Query(b.q(`SELECT `+helpRequestColumns+` FROM help_requests WHERE requester_id = ? ORDER BY id`), requesterID)
	if err != nil {
		slog.Error(b.name+" ListHelpRequestsByRequester query failed", "error", err, "requesterID", requesterID)
		return nil, fmt.Errorf("failed to query help requests: %w", err)
	}
	defer rows.Close()

	var out []models.HelpRequest
	for rows.Next() {
		h, err := scanHelpRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan help request row: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate help request rows: %w", err)
	}
	return out, nil
}

func (b *sqlBackend) AddBroadcastHandle(requestID int64, handle models.BroadcastHandle) error {
	_, err := b.db.Exec(b.q(`INSERT INTO broadcast_handles (request_id, chat_id, thread_id, message_id) VALUES (?, ?, ?, ?)`),
		requestID, handle.Destination.ChatID, handle.Destination.ThreadID, handle.MessageID)
	if err != nil {
		slog.Error(b.name+" AddBroadcastHandle failed", "error", err, "requestID", requestID)
		return fmt.Errorf("failed to record broadcast handle for %d: %w", requestID, err)
	}
	return nil
}

// ClaimHelpRequest performs the pending -> claimed transition as one conditional UPDATE.
func (b *sqlBackend) ClaimHelpRequest(requestID, collaboratorID int64, at time.Time) error {
	res, err := b.db.Exec(b.q(`
		UPDATE help_requests SET status = 'claimed', claimed_by = ?, claimed_at = ?
		WHERE id = ? AND status = 'pending'`), collaboratorID, at, requestID)
	if err != nil {
		slog.Error(b.name+" ClaimHelpRequest failed", "error", err, "requestID", requestID)
		return fmt.Errorf("failed to claim help request %d: %w", requestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim rows affected check failed: %w", err)
	}
	if n == 1 {
		slog.Info(b.name+" ClaimHelpRequest succeeded", "requestID", requestID, "collaboratorID", collaboratorID)
		return nil
	}

	found, err := b.exists(`SELECT 1 FROM help_requests WHERE id = ?`, requestID)
	if err != nil {
		return err
	}
	if !found {
		return models.ErrNotFound
	}
	slog.Debug(b.name+" ClaimHelpRequest lost race", "requestID", requestID, "collaboratorID", collaboratorID)
	return models.ErrConflict
}

func (b *sqlBackend) TakeBroadcastHandles(requestID int64) ([]models.BroadcastHandle, error) {
	tx, err := b.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(b.q(`SELECT chat_id, thread_id, message_id FROM broadcast_handles WHERE request_id = ? ORDER BY id`), requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcast handles for %d: %w", requestID, err)
	}
	handles, err := scanHandles(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(b.q(`DELETE FROM broadcast_handles WHERE request_id = ?`), requestID); err != nil {
		return nil, fmt.Errorf("failed to consume broadcast handles for %d: %w", requestID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit broadcast handle consumption: %w", err)
	}
	slog.Debug(b.name+" TakeBroadcastHandles", "requestID", requestID, "count", len(handles))
	return handles, nil
}

func (b *sqlBackend) exists(query string, args ...interface{}) (bool, error) {
	var one int
	err := b.db.QueryRow(b.q(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		slog.Error(b.name+" existence check failed", "error", err)
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	return true, nil
}

// updateField assumes field was checked against the record's whitelist.
func (b *sqlBackend) updateField(table, field string, telegramID int64, value string) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = ?, updated_at = ? WHERE telegram_id = ?`, table, field)
	res, err := b.db.Exec(b.q(query), value, time.Now(), telegramID)
	if err != nil {
		slog.Error(b.name+" updateField failed", "error", err, "table", table, "field", field, "telegramID", telegramID)
		return fmt.Errorf("failed to update %s.%s for %d: %w", table, field, telegramID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	slog.Debug(b.name+" updateField succeeded", "table", table, "field", field, "telegramID", telegramID)
	return nil
}

// Close closes the database connection.
func (b *sqlBackend) Close() error {
	slog.Debug("Closing " + b.name + " database connection")
	err := b.db.Close()
	if err != nil {
		slog.Error("Failed to close "+b.name+" database", "error", err)
	} else {
		slog.Debug(b.name + " database connection closed successfully")
	}
	return err
}
