// Package dispatch fans help requests out to specialty destinations and runs
// the claim workflow.
package dispatch

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/redmadres/danabot/internal/models"
)

// Routes maps specialties to broadcast destinations.
//
// Fallback rule, applied only by Destinations: a specialty with no entry goes
// to CatchAll; a specialty listed with an empty list goes nowhere.
type Routes struct {
	Specialties map[string][]models.Destination `yaml:"specialties"`
	CatchAll    []models.Destination            `yaml:"catch_all"`
}

// Destinations returns where a request for specialty is broadcast.
func (r *Routes) Destinations(specialty string) []models.Destination {
	if r == nil {
		return nil
	}
	if dests, ok := r.Specialties[specialty]; ok {
		return dests
	}
	return r.CatchAll
}

// LoadRoutes reads a YAML routes file. Specialty keys may be catalog keys
// (PEDIATRIA) or labels (Pediatría); keys are normalized to labels.
func LoadRoutes(path string) (*Routes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file %s: %w", path, err)
	}
	return ParseRoutes(data)
}

// ParseRoutes decodes routes from YAML.
func ParseRoutes(data []byte) (*Routes, error) {
	var raw Routes
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid routes: %v", models.ErrValidation, err)
	}

	routes := &Routes{
		Specialties: make(map[string][]models.Destination, len(raw.Specialties)),
		CatchAll:    raw.CatchAll,
	}
	for key, dests := range raw.Specialties {
		label := key
		if s, ok := models.SpecialtyByKey(key); ok {
			label = s.Label
		}
		for _, d := range dests {
			if d.ChatID == 0 {
				return nil, fmt.Errorf("%w: specialty %q has a destination without chat_id", models.ErrValidation, key)
			}
		}
		if dests == nil {
			dests = []models.Destination{}
		}
		routes.Specialties[label] = append(routes.Specialties[label], dests...)
	}
	for _, d := range routes.CatchAll {
		if d.ChatID == 0 {
			return nil, fmt.Errorf("%w: catch_all destination without chat_id", models.ErrValidation)
		}
	}
	slog.Debug("dispatch.ParseRoutes", "specialties", len(routes.Specialties), "catchAll", len(routes.CatchAll))
	return routes, nil
}

// CatchAllRoutes sends every specialty to the given destinations.
func CatchAllRoutes(dests ...models.Destination) *Routes {
	return &Routes{Specialties: map[string][]models.Destination{}, CatchAll: dests}
}
