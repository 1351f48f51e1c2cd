package store

import (
	"errors"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/redmadres/danabot/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "danabot.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}

// backends returns every store the conformance tests run against.
func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": newTestSQLiteStore(t),
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db": "postgres",
		"postgresql://localhost/db":   "postgres",
		"host=localhost user=danabot": "postgres",
		"/var/lib/danabot/state.db":   "sqlite3",
		"file:test.db?cache=shared":   "sqlite3",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %s, want %s", dsn, got, want)
		}
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.ReadSession(100)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != nil {
				t.Fatalf("expected nil session for unknown conversation, got %+v", got)
			}

			sess := models.NewSession(100)
			sess.Role = models.RoleMother
			sess.ActiveForm = models.FormHelpRequest
			sess.Phase = models.PhaseAsking
			sess.SetQuestionIndex(1)
			sess.CollectedAnswers = []string{"Alto"}
			if err := s.WriteSession(*sess); err != nil {
				t.Fatalf("WriteSession failed: %v", err)
			}
			// Overwrite to exercise the upsert path.
			sess.SetQuestionIndex(2)
			sess.CollectedAnswers = []string{"Alto", "Pediatría"}
			if err := s.WriteSession(*sess); err != nil {
				t.Fatalf("second WriteSession failed: %v", err)
			}

			got, err = s.ReadSession(100)
			if err != nil || got == nil {
				t.Fatalf("ReadSession failed: %v", err)
			}
			idx, ok := got.QuestionIndex()
			if !ok || idx != 2 || len(got.CollectedAnswers) != 2 || got.ActiveForm != models.FormHelpRequest {
				t.Errorf("unexpected session after round trip: %+v", got)
			}

			if err := s.DeleteSession(100); err != nil {
				t.Fatalf("DeleteSession failed: %v", err)
			}
			if got, _ := s.ReadSession(100); got != nil {
				t.Errorf("session still present after delete")
			}
		})
	}
}

func TestMotherRecords(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := models.Mother{TelegramID: 5, FullName: "Lucía", Phone: "600111222", Town: "Paiporta", PostalCode: "46200"}
			created, err := s.CreateMother(m)
			if err != nil || !created {
				t.Fatalf("CreateMother = %v, %v", created, err)
			}
			created, err = s.CreateMother(m)
			if err != nil || created {
				t.Fatalf("second CreateMother should report existing record, got %v, %v", created, err)
			}

			exists, err := s.MotherExists(5)
			if err != nil || !exists {
				t.Fatalf("MotherExists = %v, %v", exists, err)
			}
			if err := s.UpdateMotherField(5, models.FieldTown, "Catarroja"); err != nil {
				t.Fatalf("UpdateMotherField failed: %v", err)
			}
			got, err := s.GetMother(5)
			if err != nil || got == nil {
				t.Fatalf("GetMother failed: %v", err)
			}
			if got.Town != "Catarroja" || got.FullName != "Lucía" {
				t.Errorf("unexpected mother: %+v", got)
			}

			if err := s.UpdateMotherField(5, "blocked", "1"); !errors.Is(err, models.ErrUnknownField) {
				t.Errorf("expected ErrUnknownField, got %v", err)
			}
			if err := s.UpdateMotherField(999, models.FieldTown, "x"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if got, err := s.GetMother(999); err != nil || got != nil {
				t.Errorf("expected (nil, nil) for missing mother, got %v, %v", got, err)
			}
		})
	}
}

func TestCollaboratorRecordsAndPaging(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			names := []string{"Gema", "Ana", "Fran", "Carla", "Bea", "Elena", "Dani"}
			for i, n := range names {
				c := models.Collaborator{TelegramID: int64(10 + i), Username: "u" + n, FullName: n, Specialty: "Pediatría"}
				if _, err := s.CreateCollaborator(c); err != nil {
					t.Fatalf("CreateCollaborator failed: %v", err)
				}
			}

			total, err := s.CountCollaborators()
			if err != nil || total != 7 {
				t.Fatalf("CountCollaborators = %d, %v", total, err)
			}
			page, err := s.ListCollaborators(5, 5)
			if err != nil {
				t.Fatalf("ListCollaborators failed: %v", err)
			}
			if len(page) != 2 || page[0].FullName != "Fran" || page[1].FullName != "Gema" {
				t.Errorf("unexpected second page: %+v", page)
			}
			empty, err := s.ListCollaborators(10, 5)
			if err != nil || len(empty) != 0 {
				t.Errorf("expected empty page past the end, got %d, %v", len(empty), err)
			}

			if err := s.SetCollaboratorBlocked(11, true); err != nil {
				t.Fatalf("SetCollaboratorBlocked failed: %v", err)
			}
			c, err := s.GetCollaborator(11)
			if err != nil || c == nil || !c.Blocked {
				t.Fatalf("expected blocked collaborator, got %+v, %v", c, err)
			}
			if err := s.SetCollaboratorBlocked(404, true); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}

			if err := s.UpdateCollaboratorField(11, models.FieldLicenseNumber, "28/12345"); err != nil {
				t.Fatalf("UpdateCollaboratorField failed: %v", err)
			}
			c, _ = s.GetCollaborator(11)
			if c.LicenseNumber != "28/12345" {
				t.Errorf("license not updated: %+v", c)
			}

			if err := s.DeleteCollaborator(11); err != nil {
				t.Fatalf("DeleteCollaborator failed: %v", err)
			}
			if ok, _ := s.CollaboratorExists(11); ok {
				t.Error("collaborator still exists after delete")
			}
		})
	}
}

func TestHelpRequestLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.CreateHelpRequest(models.HelpRequest{RequesterID: 1, Urgency: models.UrgencyLow}); !errors.Is(err, models.ErrValidation) {
				t.Fatalf("expected ErrValidation for empty description, got %v", err)
			}

			id, err := s.CreateHelpRequest(models.HelpRequest{
				RequesterID: 1, Urgency: models.UrgencyHigh, Specialty: "Pediatría", Description: "Fiebre alta",
			})
			if err != nil {
				t.Fatalf("CreateHelpRequest failed: %v", err)
			}
			handles := []models.BroadcastHandle{
				{Destination: models.Destination{ChatID: -100, ThreadID: 7}, MessageID: 501},
				{Destination: models.Destination{ChatID: -200}, MessageID: 502},
			}
			for _, h := range handles {
				if err := s.AddBroadcastHandle(id, h); err != nil {
					t.Fatalf("AddBroadcastHandle failed: %v", err)
				}
			}

			req, err := s.GetHelpRequest(id)
			if err != nil || req == nil {
				t.Fatalf("GetHelpRequest failed: %v", err)
			}
			if req.Status != models.RequestPending || len(req.BroadcastHandles) != 2 || req.ClaimedBy != nil {
				t.Errorf("unexpected new request: %+v", req)
			}

			if err := s.ClaimHelpRequest(id, 42, time.Now()); err != nil {
				t.Fatalf("ClaimHelpRequest failed: %v", err)
			}
			if err := s.ClaimHelpRequest(id, 43, time.Now()); !errors.Is(err, models.ErrConflict) {
				t.Errorf("expected ErrConflict on second claim, got %v", err)
			}
			if err := s.ClaimHelpRequest(9999, 43, time.Now()); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("expected ErrNotFound for unknown request, got %v", err)
			}

			req, _ = s.GetHelpRequest(id)
			if req.Status != models.RequestClaimed || req.ClaimedBy == nil || *req.ClaimedBy != 42 || req.ClaimedAt == nil {
				t.Errorf("unexpected claimed request: %+v", req)
			}

			taken, err := s.TakeBroadcastHandles(id)
			if err != nil || len(taken) != 2 {
				t.Fatalf("TakeBroadcastHandles = %v, %v", taken, err)
			}
			if taken[0].Destination.ThreadID != 7 || taken[0].MessageID != 501 {
				t.Errorf("unexpected first handle: %+v", taken[0])
			}
			again, err := s.TakeBroadcastHandles(id)
			if err != nil || len(again) != 0 {
				t.Errorf("handles should be consumed once, got %v, %v", again, err)
			}

			list, err := s.ListHelpRequestsByRequester(1)
			if err != nil || len(list) != 1 || list[0].ID != id {
				t.Errorf("ListHelpRequestsByRequester = %+v, %v", list, err)
			}
		})
	}
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := s.CreateHelpRequest(models.HelpRequest{
				RequesterID: 1, Urgency: models.UrgencyMedium, Specialty: "Doula", Description: "Necesito apoyo",
			})
			if err != nil {
				t.Fatalf("CreateHelpRequest failed: %v", err)
			}

			const claimants = 8
			var wg sync.WaitGroup
			results := make(chan error, claimants)
			for i := 0; i < claimants; i++ {
				wg.Add(1)
				go func(collaborator int64) {
					defer wg.Done()
					results <- s.ClaimHelpRequest(id, collaborator, time.Now())
				}(int64(100 + i))
			}
			wg.Wait()
			close(results)

			wins, conflicts := 0, 0
			for err := range results {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, models.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected claim error: %v", err)
				}
			}
			if wins != 1 || conflicts != claimants-1 {
				t.Errorf("expected 1 winner and %d conflicts, got %d and %d", claimants-1, wins, conflicts)
			}
		})
	}
}

func TestDedup(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dup, err := s.IsDuplicate(77)
			if err != nil || dup {
				t.Fatalf("IsDuplicate = %v, %v", dup, err)
			}
			inserted, err := s.RecordInbound(77, 5)
			if err != nil || !inserted {
				t.Fatalf("RecordInbound = %v, %v", inserted, err)
			}
			inserted, err = s.RecordInbound(77, 5)
			if err != nil || inserted {
				t.Errorf("second RecordInbound should be a duplicate, got %v, %v", inserted, err)
			}
			if err := s.MarkProcessed(77); err != nil {
				t.Errorf("MarkProcessed failed: %v", err)
			}
			if dup, _ := s.IsDuplicate(77); !dup {
				t.Error("expected update 77 to be a duplicate")
			}
		})
	}
}

func TestSQLBackendRebind(t *testing.T) {
	pg := &sqlBackend{postgres: true}
	got := pg.q(`UPDATE t SET a = ?, b = ? WHERE id = ?`)
	if want := `UPDATE t SET a = $1, b = $2 WHERE id = $3`; got != want {
		t.Errorf("q() = %q, want %q", got, want)
	}
	lite := &sqlBackend{}
	if got := lite.q(`SELECT ?`); got != `SELECT ?` {
		t.Errorf("sqlite query rewritten: %q", got)
	}
}

func TestPostgresStore(t *testing.T) {
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	pgStore.db.Exec("DELETE FROM help_requests")

	id, err := pgStore.CreateHelpRequest(models.HelpRequest{
		RequesterID: 1, Urgency: models.UrgencyHigh, Specialty: "Pediatría", Description: "Fiebre alta",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pgStore.ClaimHelpRequest(id, 2, time.Now()); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if err := pgStore.ClaimHelpRequest(id, 3, time.Now()); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}
