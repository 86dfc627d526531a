package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc, err := store.Create(ctx, "main.go", "package main\n\nfunc main() {}\n")
			require.NoError(t, err)
			require.NotEmpty(t, doc.ID)
			require.Equal(t, "go", doc.Language)

			_, err = store.Create(ctx, "main.go", "")
			require.ErrorIs(t, err, ErrDuplicateName)
			_, err = store.Create(ctx, "  ", "")
			require.ErrorIs(t, err, ErrInvalidName)

			content, err := store.Content(ctx, doc.ID)
			require.NoError(t, err)
			require.Equal(t, "package main\n\nfunc main() {}\n", content)

			r, err := store.LineRange(ctx, doc.ID, 3, 3)
			require.NoError(t, err)
			require.Equal(t, Range{Content: "func main() {}", StartLine: 3, EndLine: 3, TotalLines: 3}, r)

			require.NoError(t, store.SetContent(ctx, doc.ID, "replaced"))
			content, err = store.Content(ctx, doc.ID)
			require.NoError(t, err)
			require.Equal(t, "replaced", content)

			_, err = store.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			_, err = store.Create(ctx, "a.md", "# a")
			require.NoError(t, err)
			docs, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, docs, 2)
			require.Equal(t, "a.md", docs[0].Name)
		})
	}
}

func TestUpdateErrorLeavesContent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc, err := store.Create(ctx, "notes.txt", "keep me")
			require.NoError(t, err)
			boom := errors.New("boom")
			_, err = store.Update(ctx, doc.ID, func(string) (string, error) { return "lost", boom })
			require.ErrorIs(t, err, boom)
			content, err := store.Content(ctx, doc.ID)
			require.NoError(t, err)
			require.Equal(t, "keep me", content)

			updated, err := store.Update(ctx, doc.ID, func(cur string) (string, error) { return cur + "!", nil })
			require.NoError(t, err)
			require.Equal(t, "keep me!", updated.Content)

			_, err = store.Update(ctx, "missing", func(cur string) (string, error) { return cur, nil })
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSliceLines(t *testing.T) {
	content := "a\nb\nc\n"
	r, err := SliceLines(content, 1, 2)
	require.NoError(t, err)
	require.Equal(t, "a\nb", r.Content)
	require.Equal(t, 3, r.TotalLines)

	_, err = SliceLines(content, 0, 1)
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = SliceLines(content, 3, 2)
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = SliceLines(content, 1, 4)
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = SliceLines("", 1, 1)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestLanguageFor(t *testing.T) {
	require.Equal(t, "typescript", LanguageFor("App.TSX"))
	require.Equal(t, "plaintext", LanguageFor("README"))
}
