package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const schemaVersion = 1

// DefaultModelID is used until the user picks a model.
const DefaultModelID = "gemini-2.5-flash"

// Settings holds the user's persisted workspace choices.
type Settings struct {
	SchemaVersion    int      `json:"schema_version"`
	ActiveModelID    string   `json:"active_model_id,omitempty"`
	ActiveDocumentID string   `json:"active_document_id,omitempty"`
	RecentModels     []string `json:"recent_models,omitempty"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSettings(), nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	backfillSettings(&settings)
	return &settings, nil
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backfillSettings(settings)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	return settings, s.Save(settings)
}

// RememberModel makes modelID active and moves it to the front of the recent list.
func (s *Settings) RememberModel(modelID string) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return
	}
	s.ActiveModelID = modelID
	recent := []string{modelID}
	for _, id := range s.RecentModels {
		if id != modelID && len(recent) < maxRecentModels {
			recent = append(recent, id)
		}
	}
	s.RecentModels = recent
}

const maxRecentModels = 5

func defaultSettings() *Settings {
	return &Settings{
		SchemaVersion: schemaVersion,
		ActiveModelID: DefaultModelID,
	}
}

func backfillSettings(settings *Settings) {
	if settings.SchemaVersion == 0 {
		settings.SchemaVersion = schemaVersion
	}
	if strings.TrimSpace(settings.ActiveModelID) == "" {
		settings.ActiveModelID = DefaultModelID
	}
}
