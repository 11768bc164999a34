package docs

import (
	"encoding/json"
	"time"
)

// Document is the current, mutable state of a knowledge-base entry. Tags are
// stored as a JSON array in a text column; use Tags/SetTags to access them.
type Document struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Title     string    `gorm:"column:title;size:512;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	Summary   string    `gorm:"column:summary;type:text;not null;default:''"`
	TagsJSON  string    `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	CreatedBy string    `gorm:"column:created_by;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// Tags decodes the stored tag array.
func (d Document) Tags() []string {
	return decodeTags(d.TagsJSON)
}

// SetTags encodes tags into the stored column.
func (d *Document) SetTags(tags []string) {
	d.TagsJSON = encodeTags(tags)
}

// Version is an immutable snapshot of a document at creation or update time.
// Positions are 1-based and append-only; rows are only removed together with
// their document.
type Version struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	DocumentID string    `gorm:"column:document_id;size:190;not null;index:idx_versions_doc_position,priority:1"`
	Position   int       `gorm:"column:position;not null;index:idx_versions_doc_position,priority:2"`
	Title      string    `gorm:"column:title;size:512;not null"`
	Content    string    `gorm:"column:content;type:text;not null"`
	Summary    string    `gorm:"column:summary;type:text;not null;default:''"`
	TagsJSON   string    `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	EditedAt   time.Time `gorm:"column:edited_at;not null"`
	EditedBy   string    `gorm:"column:edited_by;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "document_versions"
}

// Tags decodes the snapshot tag array.
func (v Version) Tags() []string {
	return decodeTags(v.TagsJSON)
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func decodeTags(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	if tags == nil {
		return []string{}
	}
	return tags
}
