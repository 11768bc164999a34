package docs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knowledgehub/backend/internal/auth"
	"github.com/knowledgehub/backend/internal/enrich"
	"github.com/knowledgehub/backend/internal/users"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSearchWindow = 200

var (
	// ErrValidation indicates a create or update with missing required fields.
	ErrValidation = errors.New("docs: title and content are required")
	// ErrForbidden indicates the caller is neither the owner nor an admin.
	ErrForbidden = errors.New("docs: not allowed")

	errMissingStore     = errors.New("document store is required")
	errMissingEnricher  = errors.New("enrichment client is required")
	errMissingDirectory = errors.New("user directory is required")
	errMissingProvider  = errors.New("id provider is required")

	noOpLogger = zap.NewNop()
)

// ServiceError carries a stable operation.reason code for infrastructure
// failures, mirroring what the HTTP layer logs and reports generically.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "docs.service.new"
	opCreate         = "docs.create"
	opUpdate         = "docs.update"
	opDelete         = "docs.delete"
	opGet            = "docs.get"
	opList           = "docs.list"
	opSearchText     = "docs.search_text"
	opSearchSemantic = "docs.search_semantic"
	opAnswer         = "docs.answer"
	opVersions       = "docs.versions"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Enricher produces AI-derived metadata and relevance judgements. All methods
// absorb backend failures into placeholder values and never return errors.
type Enricher interface {
	Summarize(ctx context.Context, content string) string
	GenerateTags(ctx context.Context, content string) []string
	SemanticSearch(ctx context.Context, query string, corpus []enrich.CorpusDoc, limit int) enrich.SearchResult
	AnswerQuestion(ctx context.Context, question string, corpus []enrich.CorpusDoc) string
}

// UserDirectory resolves user ids to display summaries for read paths.
type UserDirectory interface {
	Summaries(ctx context.Context, ids []string) (map[string]users.Summary, error)
}

// ServiceConfig describes the dependencies of the document service.
type ServiceConfig struct {
	Store        *Store
	Enricher     Enricher
	Directory    UserDirectory
	IDProvider   IDProvider
	Clock        func() time.Time
	Logger       *zap.Logger
	SearchWindow int
}

// Service orchestrates document writes through the revision pipeline
// (validate, enrich, snapshot, persist) and serves the read-side queries.
type Service struct {
	store        *Store
	enricher     Enricher
	directory    UserDirectory
	idProvider   IDProvider
	clock        func() time.Time
	logger       *zap.Logger
	searchWindow int
}

// NewService validates dependencies and constructs the document service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Enricher == nil {
		return nil, newServiceError(opServiceNew, "missing_enricher", errMissingEnricher)
	}
	if cfg.Directory == nil {
		return nil, newServiceError(opServiceNew, "missing_directory", errMissingDirectory)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	window := cfg.SearchWindow
	if window <= 0 {
		window = defaultSearchWindow
	}

	return &Service{
		store:        cfg.Store,
		enricher:     cfg.Enricher,
		directory:    cfg.Directory,
		idProvider:   cfg.IDProvider,
		clock:        clock,
		logger:       logger,
		searchWindow: window,
	}, nil
}

// CreateRequest carries the required fields for a new document.
type CreateRequest struct {
	Title   string
	Content string
}

// Regenerate selects which AI-derived fields an update should rebuild. Both
// false means enrichment runs only when the content actually changed.
type Regenerate struct {
	Summary bool
	Tags    bool
}

// UpdateRequest patches a document. Empty Title/Content leave the prior value
// in place.
type UpdateRequest struct {
	Title      string
	Content    string
	Regenerate Regenerate
}

// Create validates the request, enriches the content, and persists the
// document together with its first version snapshot. Either the whole
// pipeline succeeds or no document exists.
func (s *Service) Create(ctx context.Context, actor auth.Identity, req CreateRequest) (DocumentView, error) {
	title := strings.TrimSpace(req.Title)
	content := req.Content
	if title == "" || strings.TrimSpace(content) == "" {
		return DocumentView{}, ErrValidation
	}

	summary, tags := s.enrichFields(ctx, content, true, true, "", nil)

	docID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return DocumentView{}, newServiceError(opCreate, "id_generation_failed", err)
	}
	versionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return DocumentView{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	doc := Document{
		ID:        docID,
		Title:     title,
		Content:   content,
		Summary:   summary,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.SetTags(tags)
	version := snapshot(versionID, doc, actor.UserID, now)

	if err := s.store.CreateWithVersion(ctx, &doc, &version); err != nil {
		s.logError(opCreate, "persist_failed", err, zap.String("document_id", docID))
		return DocumentView{}, newServiceError(opCreate, "persist_failed", err)
	}

	return s.Get(ctx, doc.ID)
}

// Update patches the document, re-enriches when the content changed or the
// caller requested regeneration, appends the next version snapshot, and persists the
// whole document atomically. Non-owners without the admin role are rejected
// before anything mutates.
func (s *Service) Update(ctx context.Context, actor auth.Identity, id string, req UpdateRequest) (DocumentView, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DocumentView{}, ErrNotFound
		}
		s.logError(opUpdate, "load_failed", err, zap.String("document_id", id))
		return DocumentView{}, newServiceError(opUpdate, "load_failed", err)
	}
	if !auth.CanModify(actor, doc.CreatedBy) {
		return DocumentView{}, ErrForbidden
	}

	if title := strings.TrimSpace(req.Title); title != "" {
		doc.Title = title
	}
	contentSupplied := strings.TrimSpace(req.Content) != ""
	contentChanged := contentSupplied && req.Content != doc.Content
	if contentSupplied {
		doc.Content = req.Content
	}

	regenSummary := contentChanged || req.Regenerate.Summary
	regenTags := contentChanged || req.Regenerate.Tags
	if regenSummary || regenTags {
		summary, tags := s.enrichFields(ctx, doc.Content, regenSummary, regenTags, doc.Summary, doc.Tags())
		doc.Summary = summary
		doc.SetTags(tags)
	}

	versionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opUpdate, "id_generation_failed", err, zap.String("document_id", id))
		return DocumentView{}, newServiceError(opUpdate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	doc.UpdatedAt = now
	version := snapshot(versionID, doc, actor.UserID, now)

	if err := s.store.SaveWithVersion(ctx, &doc, &version); err != nil {
		s.logError(opUpdate, "persist_failed", err, zap.String("document_id", id))
		return DocumentView{}, newServiceError(opUpdate, "persist_failed", err)
	}

	return s.Get(ctx, doc.ID)
}

// Delete removes the document and its entire version history after the same
// ownership check updates use.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id string) error {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		s.logError(opDelete, "load_failed", err, zap.String("document_id", id))
		return newServiceError(opDelete, "load_failed", err)
	}
	if !auth.CanModify(actor, doc.CreatedBy) {
		return ErrForbidden
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		s.logError(opDelete, "persist_failed", err, zap.String("document_id", id))
		return newServiceError(opDelete, "persist_failed", err)
	}
	return nil
}

// Get returns a single document with owner and version editors resolved.
func (s *Service) Get(ctx context.Context, id string) (DocumentView, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DocumentView{}, ErrNotFound
		}
		s.logError(opGet, "load_failed", err, zap.String("document_id", id))
		return DocumentView{}, newServiceError(opGet, "load_failed", err)
	}

	views, err := s.buildViews(ctx, []Document{doc})
	if err != nil {
		s.logError(opGet, "resolve_failed", err, zap.String("document_id", id))
		return DocumentView{}, newServiceError(opGet, "resolve_failed", err)
	}
	return views[0], nil
}

// List returns documents matching the filter, newest-updated first.
func (s *Service) List(ctx context.Context, filter Filter) ([]DocumentView, error) {
	documents, err := s.store.List(ctx, filter)
	if err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}

	views, err := s.buildViews(ctx, documents)
	if err != nil {
		s.logError(opList, "resolve_failed", err)
		return nil, newServiceError(opList, "resolve_failed", err)
	}
	return views, nil
}

// SearchText returns documents matching the term lexically.
func (s *Service) SearchText(ctx context.Context, term string) ([]DocumentView, error) {
	documents, err := s.store.LexicalSearch(ctx, term)
	if err != nil {
		s.logError(opSearchText, "query_failed", err)
		return nil, newServiceError(opSearchText, "query_failed", err)
	}

	views, err := s.buildViews(ctx, documents)
	if err != nil {
		s.logError(opSearchText, "resolve_failed", err)
		return nil, newServiceError(opSearchText, "resolve_failed", err)
	}
	return views, nil
}

// SearchSemantic delegates relevance ranking over a bounded window of recent
// documents to the enrichment client. The structured-vs-raw outcome is passed
// through unchanged.
func (s *Service) SearchSemantic(ctx context.Context, query string, limit int) (enrich.SearchResult, error) {
	corpus, err := s.corpusWindow(ctx)
	if err != nil {
		s.logError(opSearchSemantic, "query_failed", err)
		return enrich.SearchResult{}, newServiceError(opSearchSemantic, "query_failed", err)
	}
	return s.enricher.SemanticSearch(ctx, query, corpus, limit), nil
}

// Answer delegates a natural-language question over the same bounded window.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	corpus, err := s.corpusWindow(ctx)
	if err != nil {
		s.logError(opAnswer, "query_failed", err)
		return "", newServiceError(opAnswer, "query_failed", err)
	}
	return s.enricher.AnswerQuestion(ctx, question, corpus), nil
}

// VersionHistory returns the full ordered snapshot sequence for a document
// with editor identities resolved.
func (s *Service) VersionHistory(ctx context.Context, id string) ([]VersionView, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		s.logError(opVersions, "load_failed", err, zap.String("document_id", id))
		return nil, newServiceError(opVersions, "load_failed", err)
	}

	versions, err := s.store.Versions(ctx, id)
	if err != nil {
		s.logError(opVersions, "query_failed", err, zap.String("document_id", id))
		return nil, newServiceError(opVersions, "query_failed", err)
	}

	editorIDs := make([]string, 0, len(versions))
	for _, version := range versions {
		editorIDs = append(editorIDs, version.EditedBy)
	}
	summaries, err := s.directory.Summaries(ctx, editorIDs)
	if err != nil {
		s.logError(opVersions, "resolve_failed", err, zap.String("document_id", id))
		return nil, newServiceError(opVersions, "resolve_failed", err)
	}

	views := make([]VersionView, 0, len(versions))
	for _, version := range versions {
		views = append(views, versionView(version, summaries))
	}
	return views, nil
}

// enrichFields runs the requested enrichment calls concurrently and waits for
// both before returning. Fields not being regenerated keep their prior value.
func (s *Service) enrichFields(ctx context.Context, content string, regenSummary, regenTags bool, priorSummary string, priorTags []string) (string, []string) {
	summary := priorSummary
	tags := priorTags

	group, groupCtx := errgroup.WithContext(ctx)
	if regenSummary {
		group.Go(func() error {
			summary = s.enricher.Summarize(groupCtx, content)
			return nil
		})
	}
	if regenTags {
		group.Go(func() error {
			tags = s.enricher.GenerateTags(groupCtx, content)
			return nil
		})
	}
	_ = group.Wait()

	return summary, tags
}

func (s *Service) corpusWindow(ctx context.Context) ([]enrich.CorpusDoc, error) {
	documents, err := s.store.Recent(ctx, s.searchWindow)
	if err != nil {
		return nil, err
	}
	corpus := make([]enrich.CorpusDoc, 0, len(documents))
	for _, doc := range documents {
		corpus = append(corpus, enrich.CorpusDoc{Title: doc.Title, Content: doc.Content})
	}
	return corpus, nil
}

// snapshot copies the document's current fields into an immutable version.
func snapshot(id string, doc Document, editedBy string, editedAt time.Time) Version {
	return Version{
		ID:         id,
		DocumentID: doc.ID,
		Title:      doc.Title,
		Content:    doc.Content,
		Summary:    doc.Summary,
		TagsJSON:   doc.TagsJSON,
		EditedAt:   editedAt,
		EditedBy:   editedBy,
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("docs service error", attrs...)
}
