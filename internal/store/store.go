// Package store provides storage backends for danabot.
//
// It includes an in-memory store and SQLite/PostgreSQL backends for conversation
// sessions, person records, help requests and inbound update deduplication.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redmadres/danabot/internal/models"
)

// SessionStore persists the per-conversation state blob.
// ReadSession returns (nil, nil) when no session exists.
type SessionStore interface {
	ReadSession(conversationID int64) (*models.Session, error)
	WriteSession(session models.Session) error
	DeleteSession(conversationID int64) error
}

// Repository persists person records and help requests.
// Lookups return (nil, nil) when zero rows match.
type Repository interface {
	CreateMother(m models.Mother) (bool, error)
	GetMother(telegramID int64) (*models.Mother, error)
	MotherExists(telegramID int64) (bool, error)
	UpdateMotherField(telegramID int64, field, value string) error

	CreateCollaborator(c models.Collaborator) (bool, error)
	GetCollaborator(telegramID int64) (*models.Collaborator, error)
	CollaboratorExists(telegramID int64) (bool, error)
	UpdateCollaboratorField(telegramID int64, field, value string) error
	SetCollaboratorBlocked(telegramID int64, blocked bool) error
	DeleteCollaborator(telegramID int64) error
	ListCollaborators(offset, limit int) ([]models.Collaborator, error)
	CountCollaborators() (int, error)

	CreateHelpRequest(h models.HelpRequest) (int64, error)
	GetHelpRequest(id int64) (*models.HelpRequest, error)
	ListHelpRequestsByRequester(requesterID int64) ([]models.HelpRequest, error)
	AddBroadcastHandle(requestID int64, handle models.BroadcastHandle) error
	// ClaimHelpRequest moves a pending request to claimed in a single conditional
	// write. It returns models.ErrConflict when the request was already claimed.
	ClaimHelpRequest(requestID, collaboratorID int64, at time.Time) error
	// TakeBroadcastHandles returns the recorded handles and removes them, so each
	// handle is handed out at most once.
	TakeBroadcastHandles(requestID int64) ([]models.BroadcastHandle, error)
}

// Store is the full persistence surface used by danabot.
type Store interface {
	SessionStore
	Repository
	DedupRepo
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend matching the DSN, or an in-memory store when dsn is empty.
func New(dsn string) (Store, error) {
	if dsn == "" {
		slog.Debug("store.New: no DSN provided, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}

// InMemoryStore is a mutex-guarded store for tests and ephemeral runs.
type InMemoryStore struct {
	mu            sync.Mutex
	sessions      map[int64][]byte
	mothers       map[int64]models.Mother
	collaborators map[int64]models.Collaborator
	requests      map[int64]models.HelpRequest
	dedup         map[int64]*DedupRecord
	nextRequestID int64
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:      make(map[int64][]byte),
		mothers:       make(map[int64]models.Mother),
		collaborators: make(map[int64]models.Collaborator),
		requests:      make(map[int64]models.HelpRequest),
		dedup:         make(map[int64]*DedupRecord),
	}
}

// ReadSession returns a copy of the stored session, or nil when absent.
func (s *InMemoryStore) ReadSession(conversationID int64) (*models.Session, error) {
	s.mu.Lock()
	data, ok := s.sessions[conversationID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %d: %w", conversationID, err)
	}
	session.Normalize()
	return &session, nil
}

func (s *InMemoryStore) WriteSession(session models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %d: %w", session.ConversationID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ConversationID] = data
	return nil
}

func (s *InMemoryStore) DeleteSession(conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, conversationID)
	return nil
}

func (s *InMemoryStore) CreateMother(m models.Mother) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.mothers[m.TelegramID]; exists {
		return false, nil
	}
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.mothers[m.TelegramID] = m
	return true, nil
}

func (s *InMemoryStore) GetMother(telegramID int64) (*models.Mother, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mothers[telegramID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *InMemoryStore) MotherExists(telegramID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mothers[telegramID]
	return ok, nil
}

func (s *InMemoryStore) UpdateMotherField(telegramID int64, field, value string) error {
	if !models.IsMotherField(field) {
		return fmt.Errorf("%w: %s", models.ErrUnknownField, field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mothers[telegramID]
	if !ok {
		return models.ErrNotFound
	}
	switch field {
	case models.FieldFullName:
		m.FullName = value
	case models.FieldPhone:
		m.Phone = value
	case models.FieldAddress:
		m.Address = value
	case models.FieldTown:
		m.Town = value
	case models.FieldPostalCode:
		m.PostalCode = value
	case models.FieldDescription:
		m.Description = value
	}
	m.UpdatedAt = time.Now()
	s.mothers[telegramID] = m
	return nil
}

func (s *InMemoryStore) CreateCollaborator(c models.Collaborator) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collaborators[c.TelegramID]; exists {
		return false, nil
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.collaborators[c.TelegramID] = c
	return true, nil
}

func (s *InMemoryStore) GetCollaborator(telegramID int64) (*models.Collaborator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collaborators[telegramID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) CollaboratorExists(telegramID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collaborators[telegramID]
	return ok, nil
}

func (s *InMemoryStore) UpdateCollaboratorField(telegramID int64, field, value string) error {
	if !models.IsCollaboratorField(field) {
		return fmt.Errorf("%w: %s", models.ErrUnknownField, field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collaborators[telegramID]
	if !ok {
		return models.ErrNotFound
	}
	switch field {
	case models.FieldFullName:
		c.FullName = value
	case models.FieldPhone:
		c.Phone = value
	case models.FieldProfession:
		c.Profession = value
	case models.FieldExperience:
		c.Experience = value
	case models.FieldSpecialty:
		c.Specialty = value
	case models.FieldLicenseNumber:
		c.LicenseNumber = value
	}
	c.UpdatedAt = time.Now()
	s.collaborators[telegramID] = c
	return nil
}

func (s *InMemoryStore) SetCollaboratorBlocked(telegramID int64, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collaborators[telegramID]
	if !ok {
		return models.ErrNotFound
	}
	c.Blocked = blocked
	c.UpdatedAt = time.Now()
	s.collaborators[telegramID] = c
	return nil
}

func (s *InMemoryStore) DeleteCollaborator(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collaborators, telegramID)
	return nil
}

// ListCollaborators returns collaborators ordered by name, like the SQL backends.
func (s *InMemoryStore) ListCollaborators(offset, limit int) ([]models.Collaborator, error) {
	s.mu.Lock()
	all := make([]models.Collaborator, 0, len(s.collaborators))
	for _, c := range s.collaborators {
		all = append(all, c)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].FullName == all[j].FullName {
			return all[i].TelegramID < all[j].TelegramID
		}
		return all[i].FullName < all[j].FullName
	})
	if offset >= len(all) {
		return []models.Collaborator{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *InMemoryStore) CountCollaborators() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collaborators), nil
}

func (s *InMemoryStore) CreateHelpRequest(h models.HelpRequest) (int64, error) {
	if err := h.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRequestID++
	h.ID = s.nextRequestID
	h.Status = models.RequestPending
	h.BroadcastHandles = nil
	h.ClaimedBy = nil
	h.ClaimedAt = nil
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	s.requests[h.ID] = h
	return h.ID, nil
}

func (s *InMemoryStore) GetHelpRequest(id int64) (*models.HelpRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	h.BroadcastHandles = append([]models.BroadcastHandle(nil), h.BroadcastHandles...)
	return &h, nil
}

func (s *InMemoryStore) ListHelpRequestsByRequester(requesterID int64) ([]models.HelpRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.HelpRequest
	for _, h := range s.requests {
		if h.RequesterID == requesterID {
			h.BroadcastHandles = nil
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) AddBroadcastHandle(requestID int64, handle models.BroadcastHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.requests[requestID]
	if !ok {
		return models.ErrNotFound
	}
	h.BroadcastHandles = append(h.BroadcastHandles, handle)
	s.requests[requestID] = h
	return nil
}

func (s *InMemoryStore) ClaimHelpRequest(requestID, collaboratorID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.requests[requestID]
	if !ok {
		return models.ErrNotFound
	}
	if h.Status != models.RequestPending {
		return models.ErrConflict
	}
	h.Status = models.RequestClaimed
	h.ClaimedBy = &collaboratorID
	h.ClaimedAt = &at
	s.requests[requestID] = h
	return nil
}

func (s *InMemoryStore) TakeBroadcastHandles(requestID int64) ([]models.BroadcastHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.requests[requestID]
	if !ok {
		return nil, models.ErrNotFound
	}
	handles := h.BroadcastHandles
	h.BroadcastHandles = nil
	s.requests[requestID] = h
	return handles, nil
}

func (s *InMemoryStore) IsDuplicate(updateID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dedup[updateID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(updateID, conversationID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[updateID]; ok {
		return false, nil
	}
	s.dedup[updateID] = &DedupRecord{UpdateID: updateID, ConversationID: conversationID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(updateID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[updateID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
