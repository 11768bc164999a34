package docs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedDocument(t *testing.T, store *Store, id, title, content string, tags []string, owner string, updatedAt time.Time) {
	t.Helper()
	doc := Document{
		ID:        id,
		Title:     title,
		Content:   content,
		CreatedBy: owner,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	doc.SetTags(tags)
	version := snapshot(id+"-v1", doc, owner, updatedAt)
	if err := store.CreateWithVersion(context.Background(), &doc, &version); err != nil {
		t.Fatalf("failed to seed document %s: %v", id, err)
	}
}

func newSeededStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(newTestDB(t))
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}

	base := time.Unix(1700000000, 0).UTC()
	seedDocument(t, store, "doc-1", "Release Process", "We cut a release branch every sprint.", []string{"process", "go"}, "user-1", base)
	seedDocument(t, store, "doc-2", "Onboarding", "New joiners start with the Golang codebase.", []string{"golang", "people"}, "user-2", base.Add(time.Minute))
	seedDocument(t, store, "doc-3", "Incident Review", "Postmortem template and process notes.", []string{"process"}, "user-1", base.Add(2*time.Minute))
	return store
}

func TestStoreCreateAssignsFirstPosition(t *testing.T) {
	store := newSeededStore(t)

	versions, err := store.Versions(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(versions) != 1 || versions[0].Position != 1 {
		t.Fatalf("expected single version at position 1, got %+v", versions)
	}
}

func TestStoreSaveAppendsNextPosition(t *testing.T) {
	store := newSeededStore(t)

	doc, err := store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc.Title = "Release Process v2"
	version := snapshot("doc-1-v2", doc, "user-1", doc.UpdatedAt.Add(time.Hour))
	if err := store.SaveWithVersion(context.Background(), &doc, &version); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	versions, err := store.Versions(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].Position != 1 || versions[1].Position != 2 {
		t.Fatalf("positions must be sequential, got %d and %d", versions[0].Position, versions[1].Position)
	}
	if versions[1].Title != "Release Process v2" {
		t.Fatalf("appended version must carry the new title")
	}
}

func TestStoreGetUnknownReturnsNotFound(t *testing.T) {
	store := newSeededStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreListOrdersNewestFirst(t *testing.T) {
	store := newSeededStore(t)

	documents, err := store.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(documents) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(documents))
	}
	if documents[0].ID != "doc-3" || documents[2].ID != "doc-1" {
		t.Fatalf("expected newest-updated first, got %s .. %s", documents[0].ID, documents[2].ID)
	}
}

func TestStoreListFilterByExactTag(t *testing.T) {
	store := newSeededStore(t)

	// "go" must not match documents tagged "golang".
	documents, err := store.List(context.Background(), Filter{Tag: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(documents) != 1 || documents[0].ID != "doc-1" {
		t.Fatalf("expected only doc-1 for tag go, got %+v", documents)
	}
}

func TestStoreListFilterByOwner(t *testing.T) {
	store := newSeededStore(t)

	documents, err := store.List(context.Background(), Filter{OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(documents) != 2 {
		t.Fatalf("expected 2 documents for user-1, got %d", len(documents))
	}

	combined, err := store.List(context.Background(), Filter{OwnerID: "user-1", Tag: "process"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(combined) != 2 {
		t.Fatalf("expected both filters to apply, got %d", len(combined))
	}
}

func TestStoreLexicalSearchIsCaseInsensitive(t *testing.T) {
	store := newSeededStore(t)

	byTitle, err := store.LexicalSearch(context.Background(), "RELEASE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byTitle) != 1 || byTitle[0].ID != "doc-1" {
		t.Fatalf("expected doc-1 by title, got %+v", byTitle)
	}

	byContent, err := store.LexicalSearch(context.Background(), "postmortem")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byContent) != 1 || byContent[0].ID != "doc-3" {
		t.Fatalf("expected doc-3 by content, got %+v", byContent)
	}
}

func TestStoreLexicalSearchCombinesTagAndSubstringBranches(t *testing.T) {
	store := newSeededStore(t)

	// "go" reaches doc-1 through its exact tag and doc-2 through the
	// substring branch on its content ("Golang").
	results, err := store.LexicalSearch(context.Background(), "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}

	byTag, err := store.LexicalSearch(context.Background(), "people")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byTag) != 1 || byTag[0].ID != "doc-2" {
		t.Fatalf("expected doc-2 by tag, got %+v", byTag)
	}
}

func TestStoreDeleteRemovesVersions(t *testing.T) {
	store := newSeededStore(t)

	if err := store.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Get(context.Background(), "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	versions, err := store.Versions(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("expected no versions after delete, got %d", len(versions))
	}
}

func TestStoreDeleteUnknownReturnsNotFound(t *testing.T) {
	store := newSeededStore(t)
	if err := store.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreVersionsByDocumentGroupsAndOrders(t *testing.T) {
	store := newSeededStore(t)

	doc, err := store.Get(context.Background(), "doc-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	version := snapshot("doc-2-v2", doc, "user-2", doc.UpdatedAt.Add(time.Hour))
	if err := store.SaveWithVersion(context.Background(), &doc, &version); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	grouped, err := store.VersionsByDocument(context.Background(), []string{"doc-1", "doc-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grouped["doc-1"]) != 1 || len(grouped["doc-2"]) != 2 {
		t.Fatalf("unexpected grouping: %d and %d", len(grouped["doc-1"]), len(grouped["doc-2"]))
	}
	if grouped["doc-2"][0].Position != 1 || grouped["doc-2"][1].Position != 2 {
		t.Fatalf("versions must be ordered by position within each document")
	}

	empty, err := store.VersionsByDocument(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty grouping for no ids")
	}
}

func TestStoreRecentHonorsLimit(t *testing.T) {
	store := newSeededStore(t)

	documents, err := store.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(documents))
	}
	expected := []string{"doc-3", "doc-2"}
	for i, id := range expected {
		if documents[i].ID != id {
			t.Fatalf("expected %s at %d, got %s", id, i, documents[i].ID)
		}
	}
}
