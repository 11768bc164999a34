package docs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("docs: document not found")

// Filter narrows a document listing. Zero values match everything.
type Filter struct {
	Tag     string
	OwnerID string
}

// Store owns document and version persistence. Each write touches exactly one
// document and its version rows inside a single transaction, so readers never
// observe a document without its matching snapshot.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a document store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("docs: database handle is required")
	}
	return &Store{db: db}, nil
}

// CreateWithVersion inserts a new document together with its first snapshot.
// The version position is assigned inside the transaction.
func (s *Store) CreateWithVersion(ctx context.Context, doc *Document, version *Version) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		version.DocumentID = doc.ID
		version.Position = 1
		return tx.Create(version).Error
	})
}

// SaveWithVersion persists the updated document and appends the next snapshot
// atomically.
func (s *Store) SaveWithVersion(ctx context.Context, doc *Document, version *Version) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(doc).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&Version{}).Where("document_id = ?", doc.ID).Count(&count).Error; err != nil {
			return err
		}
		version.DocumentID = doc.ID
		version.Position = int(count) + 1
		return tx.Create(version).Error
	})
}

// Get loads a single document.
func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// List returns documents matching the filter, most recently updated first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Document, error) {
	query := s.db.WithContext(ctx).Model(&Document{})
	if filter.Tag != "" {
		query = query.Where("tags_json LIKE ?", tagPattern(filter.Tag))
	}
	if filter.OwnerID != "" {
		query = query.Where("created_by = ?", filter.OwnerID)
	}

	var documents []Document
	if err := query.Order("updated_at DESC").Find(&documents).Error; err != nil {
		return nil, err
	}
	return documents, nil
}

// Delete removes a document and all its version snapshots together.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&Document{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("document_id = ?", id).Delete(&Version{}).Error
	})
}

// LexicalSearch matches term case-insensitively as a substring of title or
// content, or as an exact tag value. An empty term matches every document.
func (s *Store) LexicalSearch(ctx context.Context, term string) ([]Document, error) {
	lowered := strings.ToLower(term)
	substring := "%" + lowered + "%"

	var documents []Document
	err := s.db.WithContext(ctx).
		Where("lower(title) LIKE ? OR lower(content) LIKE ? OR lower(tags_json) LIKE ?",
			substring, substring, tagPattern(lowered)).
		Order("updated_at DESC").
		Find(&documents).Error
	if err != nil {
		return nil, err
	}
	return documents, nil
}

// Versions returns the full ordered snapshot sequence for a document.
func (s *Store) Versions(ctx context.Context, documentID string) ([]Version, error) {
	var versions []Version
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("position ASC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// VersionsByDocument loads ordered snapshots for a set of documents in one
// query, grouped by document id.
func (s *Store) VersionsByDocument(ctx context.Context, documentIDs []string) (map[string][]Version, error) {
	grouped := make(map[string][]Version, len(documentIDs))
	if len(documentIDs) == 0 {
		return grouped, nil
	}

	var versions []Version
	err := s.db.WithContext(ctx).
		Where("document_id IN ?", documentIDs).
		Order("document_id, position ASC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	for _, version := range versions {
		grouped[version.DocumentID] = append(grouped[version.DocumentID], version)
	}
	return grouped, nil
}

// Recent returns the most recently updated documents, bounded by limit. It
// backs the corpus window for semantic search and Q&A.
func (s *Store) Recent(ctx context.Context, limit int) ([]Document, error) {
	var documents []Document
	err := s.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&documents).Error
	if err != nil {
		return nil, err
	}
	return documents, nil
}

// tagPattern matches an exact tag value inside the serialized JSON array.
func tagPattern(tag string) string {
	return `%"` + tag + `"%`
}
