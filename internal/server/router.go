package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/knowledgehub/backend/internal/auth"
	"github.com/knowledgehub/backend/internal/docs"
	"github.com/knowledgehub/backend/internal/users"
	"go.uber.org/zap"
)

const identityContextKey = "knowledgehub_identity"
const profileContextKey = "knowledgehub_profile"

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingDocsService    = errors.New("docs service dependency required")
	errMissingUsersService   = errors.New("users service dependency required")
)

// TokenValidator checks a bearer token and returns the caller identity.
type TokenValidator interface {
	ValidateToken(token string) (auth.Identity, error)
}

// Dependencies wires the router to its collaborators.
type Dependencies struct {
	TokenValidator TokenValidator
	DocsService    *docs.Service
	UsersService   *users.Service
	Logger         *zap.Logger
}

// NewHTTPHandler builds the API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenValidator == nil {
		return nil, errMissingTokenValidator
	}
	if deps.DocsService == nil {
		return nil, errMissingDocsService
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		validator:    deps.TokenValidator,
		docsService:  deps.DocsService,
		usersService: deps.UsersService,
		logger:       logger,
	}

	router.GET("/", handler.handleHealth)
	router.POST("/api/auth/signup", handler.handleSignup)

	protected := router.Group("/api/docs")
	protected.Use(handler.authorizeRequest)
	protected.POST("", handler.handleCreateDoc)
	protected.GET("", handler.handleListDocs)
	protected.GET("/search/text", handler.handleTextSearch)
	protected.GET("/search/semantic", handler.handleSemanticSearch)
	protected.POST("/qa", handler.handleQA)
	protected.GET("/:id", handler.handleGetDoc)
	protected.PUT("/:id", handler.handleUpdateDoc)
	protected.DELETE("/:id", handler.handleDeleteDoc)
	protected.GET("/:id/versions", handler.handleVersions)

	return router, nil
}

type httpHandler struct {
	validator    TokenValidator
	docsService  *docs.Service
	usersService *users.Service
	logger       *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "Knowledge Hub API is running")
}

type signupRequestPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error"})
		return
	}

	if _, err := h.usersService.Register(c.Request.Context(), request.Name, request.Email, request.Password); err != nil {
		h.logger.Warn("signup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account created"})
}

type docRequestPayload struct {
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Regenerate json.RawMessage `json:"regenerate"`
}

func (h *httpHandler) handleCreateDoc(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}

	var request docRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and content required"})
		return
	}

	view, err := h.docsService.Create(c.Request.Context(), identity, docs.CreateRequest{
		Title:   request.Title,
		Content: request.Content,
	})
	if err != nil {
		h.writeDocsError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleListDocs(c *gin.Context) {
	identity, _ := callerIdentity(c)

	filter := docs.Filter{Tag: c.Query("tag")}
	if c.Query("mine") == "true" {
		filter.OwnerID = identity.UserID
	}

	views, err := h.docsService.List(c.Request.Context(), filter)
	if err != nil {
		h.writeDocsError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleGetDoc(c *gin.Context) {
	view, err := h.docsService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeDocsError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleUpdateDoc(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}

	var request docRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	regenerate, err := parseRegenerate(request.Regenerate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid regenerate value"})
		return
	}

	view, err := h.docsService.Update(c.Request.Context(), identity, c.Param("id"), docs.UpdateRequest{
		Title:      request.Title,
		Content:    request.Content,
		Regenerate: regenerate,
	})
	if err != nil {
		h.writeDocsError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleDeleteDoc(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}

	if err := h.docsService.Delete(c.Request.Context(), identity, c.Param("id")); err != nil {
		h.writeDocsError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

func (h *httpHandler) handleTextSearch(c *gin.Context) {
	views, err := h.docsService.SearchText(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeDocsError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleSemanticSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q query param required"})
		return
	}

	result, err := h.docsService.SearchSemantic(c.Request.Context(), query, 5)
	if err != nil {
		h.writeDocsError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type qaRequestPayload struct {
	Question string `json:"question"`
}

func (h *httpHandler) handleQA(c *gin.Context) {
	var request qaRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question required"})
		return
	}

	answer, err := h.docsService.Answer(c.Request.Context(), request.Question)
	if err != nil {
		h.writeDocsError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (h *httpHandler) handleVersions(c *gin.Context) {
	versions, err := h.docsService.VersionHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeDocsError(c, err)
		return
	}
	if versions == nil {
		versions = []docs.VersionView{}
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// authorizeRequest validates the bearer token and attaches the caller
// identity. A fresh profile lookup is attempted afterwards; its failure is
// tolerated and the request proceeds on the token claims alone.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}

	identity, err := h.validator.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	c.Set(identityContextKey, identity)

	if profile, err := h.usersService.GetByID(c.Request.Context(), identity.UserID); err == nil {
		c.Set(profileContextKey, profile.Summary())
	}

	c.Next()
}

func callerIdentity(c *gin.Context) (auth.Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	if !ok || identity.UserID == "" {
		return auth.Identity{}, false
	}
	return identity, true
}

func (h *httpHandler) writeDocsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, docs.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and content required"})
	case errors.Is(err, docs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
	case errors.Is(err, docs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
	}
}

// parseRegenerate accepts the regenerate field as either a JSON bool (true
// regenerates both fields) or one of the strings "summary", "tags", "both".
func parseRegenerate(raw json.RawMessage) (docs.Regenerate, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return docs.Regenerate{}, nil
	}

	var flag bool
	if err := json.Unmarshal(trimmed, &flag); err == nil {
		return docs.Regenerate{Summary: flag, Tags: flag}, nil
	}

	var mode string
	if err := json.Unmarshal(trimmed, &mode); err != nil {
		return docs.Regenerate{}, errors.New("regenerate must be a bool or mode string")
	}
	switch mode {
	case "":
		return docs.Regenerate{}, nil
	case "summary":
		return docs.Regenerate{Summary: true}, nil
	case "tags":
		return docs.Regenerate{Tags: true}, nil
	case "both":
		return docs.Regenerate{Summary: true, Tags: true}, nil
	default:
		return docs.Regenerate{}, errors.New("unknown regenerate mode")
	}
}
