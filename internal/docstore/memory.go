package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*Document
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]*Document{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *doc, nil
}

func (s *MemoryStore) Content(ctx context.Context, id string) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

func (s *MemoryStore) SetContent(ctx context.Context, id, content string) error {
	_, err := s.Update(ctx, id, func(string) (string, error) { return content, nil })
	return err
}

func (s *MemoryStore) LineRange(ctx context.Context, id string, start, end int) (Range, error) {
	content, err := s.Content(ctx, id)
	if err != nil {
		return Range{}, err
	}
	return SliceLines(content, start, end)
}

func (s *MemoryStore) List(_ context.Context) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, name, content string) (Document, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if doc.Name == name {
			return Document{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	doc := &Document{
		ID:        uuid.NewString(),
		Name:      name,
		Content:   content,
		Language:  LanguageFor(name),
		UpdatedAt: s.now().UTC(),
	}
	s.docs[doc.ID] = doc
	return *doc, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, err := fn(doc.Content)
	if err != nil {
		return Document{}, err
	}
	if next != doc.Content {
		doc.Content = next
		doc.UpdatedAt = s.now().UTC()
	}
	return *doc, nil
}
