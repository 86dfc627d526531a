package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettingsRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.ActiveModelID != DefaultModelID {
		t.Fatalf("expected default model, got %q", settings.ActiveModelID)
	}
	settings.ActiveDocumentID = "doc-1"
	settings.RememberModel("gemini-2.5-pro")
	if err := store.Save(settings); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.ActiveDocumentID != "doc-1" || loaded.ActiveModelID != "gemini-2.5-pro" {
		t.Fatalf("unexpected settings: %+v", loaded)
	}
}

func TestSettingsBackfill(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "settings.json")
	if err := os.WriteFile(path, []byte(`{"active_document_id":"d"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.SchemaVersion != schemaVersion || loaded.ActiveModelID != DefaultModelID {
		t.Fatalf("expected backfilled settings, got %+v", loaded)
	}
}

func TestRememberModelKeepsRecentListBounded(t *testing.T) {
	s := defaultSettings()
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "b"} {
		s.RememberModel(id)
	}
	if s.ActiveModelID != "b" || s.RecentModels[0] != "b" {
		t.Fatalf("expected b first, got %v", s.RecentModels)
	}
	if len(s.RecentModels) != maxRecentModels {
		t.Fatalf("expected %d recent models, got %v", maxRecentModels, s.RecentModels)
	}
	seen := map[string]bool{}
	for _, id := range s.RecentModels {
		if seen[id] {
			t.Fatalf("duplicate recent model %q", id)
		}
		seen[id] = true
	}
}

func TestUpdate(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested", "settings.json"))
	if _, err := store.Update(func(s *Settings) { s.ActiveDocumentID = "x" }); err != nil {
		t.Fatalf("update: %v", err)
	}
	loaded, err := store.Load()
	if err != nil || loaded.ActiveDocumentID != "x" {
		t.Fatalf("expected persisted update, got %+v %v", loaded, err)
	}
}
