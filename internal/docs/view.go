package docs

import (
	"context"
	"time"

	"github.com/knowledgehub/backend/internal/users"
)

// DocumentView is the API projection of a document: tags decoded, references
// resolved to display summaries, full version history attached.
type DocumentView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Summary   string        `json:"summary"`
	Tags      []string      `json:"tags"`
	CreatedBy users.Summary `json:"createdBy"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Versions  []VersionView `json:"versions"`
}

// VersionView is the API projection of one version snapshot.
type VersionView struct {
	Title    string        `json:"title"`
	Content  string        `json:"content"`
	Summary  string        `json:"summary"`
	Tags     []string      `json:"tags"`
	EditedAt time.Time     `json:"editedAt"`
	EditedBy users.Summary `json:"editedBy"`
}

// buildViews resolves user references and attaches version histories for a
// batch of documents in two queries.
func (s *Service) buildViews(ctx context.Context, documents []Document) ([]DocumentView, error) {
	ids := make([]string, 0, len(documents))
	for _, doc := range documents {
		ids = append(ids, doc.ID)
	}

	versionsByDoc, err := s.store.VersionsByDocument(ctx, ids)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0, len(documents))
	seen := make(map[string]bool, len(documents))
	collect := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		userIDs = append(userIDs, id)
	}
	for _, doc := range documents {
		collect(doc.CreatedBy)
		for _, version := range versionsByDoc[doc.ID] {
			collect(version.EditedBy)
		}
	}

	summaries, err := s.directory.Summaries(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	views := make([]DocumentView, 0, len(documents))
	for _, doc := range documents {
		versions := versionsByDoc[doc.ID]
		versionViews := make([]VersionView, 0, len(versions))
		for _, version := range versions {
			versionViews = append(versionViews, versionView(version, summaries))
		}
		views = append(views, DocumentView{
			ID:        doc.ID,
			Title:     doc.Title,
			Content:   doc.Content,
			Summary:   doc.Summary,
			Tags:      doc.Tags(),
			CreatedBy: userSummary(doc.CreatedBy, summaries),
			CreatedAt: doc.CreatedAt,
			UpdatedAt: doc.UpdatedAt,
			Versions:  versionViews,
		})
	}
	return views, nil
}

func versionView(version Version, summaries map[string]users.Summary) VersionView {
	return VersionView{
		Title:    version.Title,
		Content:  version.Content,
		Summary:  version.Summary,
		Tags:     version.Tags(),
		EditedAt: version.EditedAt,
		EditedBy: userSummary(version.EditedBy, summaries),
	}
}

// userSummary falls back to a bare id when the account no longer exists.
func userSummary(id string, summaries map[string]users.Summary) users.Summary {
	if summary, ok := summaries[id]; ok {
		return summary
	}
	return users.Summary{ID: id}
}
