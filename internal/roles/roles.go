// Package roles resolves which population a conversation belongs to and
// gates the menus each population can see.
package roles

import (
	"log/slog"

	"github.com/redmadres/danabot/internal/models"
	"github.com/redmadres/danabot/internal/store"
)

// PageSize is the number of collaborators shown per admin list page.
const PageSize = 5

// Registry resolves roles from the admin allow-list, the session and the
// stored person records.
type Registry struct {
	repo   store.Repository
	admins map[int64]struct{}
}

// NewRegistry creates a registry. adminIDs is the static allow-list of
// administrator identities.
func NewRegistry(repo store.Repository, adminIDs []int64) *Registry {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	slog.Debug("roles.NewRegistry", "admins", len(admins))
	return &Registry{repo: repo, admins: admins}
}

// IsAdministrator reports whether the identity is on the allow-list.
func (r *Registry) IsAdministrator(id int64) bool {
	_, ok := r.admins[id]
	return ok
}

// Resolve applies first-contact resolution to the session and returns the
// resulting role:
//
//   - allow-listed identities become Administrator;
//   - a recorded Mother or Collaborator role is kept only when the matching
//     record still exists, otherwise the session is reset;
//   - an unset session whose identity already has a record adopts that role;
//   - everyone else ends up AwaitingRoleChoice.
//
// Storage errors are logged and treated as a missing record.
func (r *Registry) Resolve(s *models.Session, senderID int64) models.Role {
	if r.IsAdministrator(senderID) {
		if s.Role != models.RoleAdministrator {
			slog.Info("Registry.Resolve administrator", "senderID", senderID)
		}
		s.Role = models.RoleAdministrator
		return s.Role
	}

	switch s.Role {
	case models.RoleMother:
		if r.exists(r.repo.MotherExists, senderID) {
			return s.Role
		}
	case models.RoleCollaborator:
		if r.exists(r.repo.CollaboratorExists, senderID) {
			return s.Role
		}
	case models.RoleAwaitingChoice, models.RoleUnset:
		// Registration forms keep their place: the role is recorded on completion.
		if s.ActiveForm == models.FormMother || s.ActiveForm == models.FormCollaborator {
			return s.Role
		}
		if s.FormActive() {
			s.ClearForm()
		}
		// A lost session blob should not send registered people back to registration.
		if s.Role == models.RoleUnset {
			switch {
			case r.exists(r.repo.CollaboratorExists, senderID):
				s.Role = models.RoleCollaborator
				return s.Role
			case r.exists(r.repo.MotherExists, senderID):
				s.Role = models.RoleMother
				return s.Role
			}
		}
		s.Role = models.RoleAwaitingChoice
		return s.Role
	}

	slog.Warn("Registry.Resolve inconsistent role, falling back to role choice", "senderID", senderID, "role", s.Role)
	s.ClearForm()
	s.CurrentEditingField = ""
	s.Role = models.RoleAwaitingChoice
	return s.Role
}

func (r *Registry) exists(check func(int64) (bool, error), id int64) bool {
	ok, err := check(id)
	if err != nil {
		slog.Error("Registry existence check failed", "error", err, "id", id)
		return false
	}
	return ok
}

// Page describes one page of a paginated list.
type Page struct {
	Number  int // 1-based
	Offset  int
	Limit   int
	HasPrev bool
	HasNext bool
}

// Paginate computes the bounds of page (1-based) over total items. Pages
// below 1 are clamped to 1.
func Paginate(total, page, size int) Page {
	if size < 1 {
		size = PageSize
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	return Page{
		Number:  page,
		Offset:  offset,
		Limit:   size,
		HasPrev: page > 1,
		HasNext: offset+size < total,
	}
}
