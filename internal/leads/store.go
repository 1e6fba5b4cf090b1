// Package leads persists qualified leads captured by the assistant during
// conversations.
package leads

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"
)

// SavedMessage is the confirmation relayed to the user after a lead is
// stored.
const SavedMessage = "Lead saved successfully."

// Lead is one captured lead. All fields may be empty when the conversation
// did not surface them; whitespace is trimmed on save.
type Lead struct {
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	UseCase   string    `json:"use_case"`
	TeamSize  string    `json:"team_size"`
	Timeline  string    `json:"timeline"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func (l Lead) normalized() Lead {
	l.Name = strings.TrimSpace(l.Name)
	l.Company = strings.TrimSpace(l.Company)
	l.Email = strings.TrimSpace(l.Email)
	l.Role = strings.TrimSpace(l.Role)
	l.UseCase = strings.TrimSpace(l.UseCase)
	l.TeamSize = strings.TrimSpace(l.TeamSize)
	l.Timeline = strings.TrimSpace(l.Timeline)
	l.Notes = strings.TrimSpace(l.Notes)
	return l
}

// Store appends leads to a pretty-printed JSON array file. Writes are atomic
// (write-to-temp then rename) so a crash never leaves a half-written file.
// Safe for concurrent use.
type Store struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// NewStore returns a store writing to path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Save normalizes the lead, stamps it, and appends it to the file.
// An unreadable existing file is logged and replaced with a fresh list.
func (s *Store) Save(lead Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.readForAppend()

	lead = lead.normalized()
	lead.CreatedAt = time.Now().UTC()
	existing = append(existing, lead)

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("encode leads: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write leads file: %w", err)
	}

	s.logger.Info("lead saved",
		zap.String("name", lead.Name),
		zap.String("company", lead.Company),
		zap.Int("total", len(existing)),
	)
	return nil
}

// List returns all stored leads. A missing file is an empty list; a corrupt
// file is an error (listing must not silently drop data the way appending
// recovers from it).
func (s *Store) List() ([]Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Lead{}, nil
		}
		return nil, fmt.Errorf("read leads file: %w", err)
	}

	var leads []Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, fmt.Errorf("parse leads file: %w", err)
	}
	return leads, nil
}

// readForAppend loads the current list for appending, starting fresh when
// the file is missing, unreadable, or not a list.
func (s *Store) readForAppend() []Lead {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("failed to read existing leads file, starting fresh", zap.Error(err))
		}
		return nil
	}

	var leads []Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		s.logger.Error("failed to parse existing leads file, starting fresh", zap.Error(err))
		return nil
	}
	return leads
}
