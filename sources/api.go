package sources

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/grantscout/grantscout/scrape"
)

// SourceAPIServer represents the HTTP API server for source management.
type SourceAPIServer struct {
	store *SourceStore
}

// NewSourceAPIServer creates a new source API server.
func NewSourceAPIServer(store *SourceStore) *SourceAPIServer {
	return &SourceAPIServer{
		store: store,
	}
}

// SetupRouter configures the Gin router with all source API routes.
func (s *SourceAPIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	s.RegisterRoutes(router)

	return router
}

// RegisterRoutes attaches the source management routes to an existing router.
func (s *SourceAPIServer) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.GET("/sources", s.HandleListSources)
	api.GET("/sources/:id", s.HandleGetSource)
	api.POST("/sources", s.HandleCreateSource)
	api.PUT("/sources/:id", s.HandleUpdateSource)
	api.DELETE("/sources/:id", s.HandleDeleteSource)
}

// ListSourcesResponse represents the response for GET /api/v1/sources.
type ListSourcesResponse struct {
	Sources []Source `json:"sources"`
	Total   int      `json:"total"`
}

// CreateSourceRequest represents the request for POST /api/v1/sources.
type CreateSourceRequest struct {
	SourceType   string              `json:"source_type" binding:"required"`
	URL          string              `json:"url" binding:"required"`
	Name         string              `json:"name" binding:"required"`
	Funder       string              `json:"funder"`
	FallbackURLs []string            `json:"fallback_urls,omitempty"`
	Selectors    *scrape.SelectorMap `json:"selectors,omitempty"`
	Enabled      *bool               `json:"enabled,omitempty"` // Default: true
}

// UpdateSourceRequest represents the request for PUT /api/v1/sources/{id}.
type UpdateSourceRequest struct {
	Name         *string             `json:"name,omitempty"`
	URL          *string             `json:"url,omitempty"`
	Funder       *string             `json:"funder,omitempty"`
	FallbackURLs []string            `json:"fallback_urls,omitempty"`
	Selectors    *scrape.SelectorMap `json:"selectors,omitempty"`
	Enabled      *bool               `json:"enabled,omitempty"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *SourceAPIServer) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSourceNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, ErrDuplicateURL):
		c.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, ErrInvalidSourceType):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// HandleListSources handles GET /api/v1/sources.
func (s *SourceAPIServer) HandleListSources(c *gin.Context) {
	// Build filter from query parameters
	filter := SourceFilter{}

	if typeParam := c.Query("type"); typeParam != "" {
		filter.Type = &typeParam
	}

	if enabledParam := c.Query("enabled"); enabledParam != "" {
		enabled := enabledParam == "true"
		filter.Enabled = &enabled
	}

	sources, err := s.store.ListSources(filter)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListSourcesResponse{
		Sources: sources,
		Total:   len(sources),
	})
}

// HandleGetSource handles GET /api/v1/sources/{id}.
func (s *SourceAPIServer) HandleGetSource(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid source ID"))
		return
	}

	source, err := s.store.GetSource(sourceID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, source)
}

// HandleCreateSource handles POST /api/v1/sources.
func (s *SourceAPIServer) HandleCreateSource(c *gin.Context) {
	var req CreateSourceRequest

	// Bind JSON -- Gin validates required fields automatically
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	// Validate source type (checked again in CreateSource, but fail fast)
	if err := ValidateSourceType(req.SourceType); err != nil {
		s.handleError(c, err)
		return
	}

	// Website sources cannot be harvested without selectors
	if req.SourceType == "website" && req.Selectors == nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "selectors are required for website sources"))
		return
	}

	// Determine enabled_at value from boolean enabled field
	var enabledAt *time.Time
	if req.Enabled == nil || *req.Enabled {
		// Default to enabled or explicitly enabled
		now := time.Now()
		enabledAt = &now
	}
	// If explicitly disabled, enabledAt stays nil

	source, err := s.store.CreateSource(
		req.SourceType, req.URL, req.Name, req.Funder,
		req.FallbackURLs, req.Selectors, enabledAt,
	)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, source)
}

// HandleUpdateSource handles PUT /api/v1/sources/{id}.
func (s *SourceAPIServer) HandleUpdateSource(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid source ID"))
		return
	}

	var req UpdateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}

	// Build update struct
	update := SourceUpdate{
		Name:         req.Name,
		URL:          req.URL,
		Funder:       req.Funder,
		FallbackURLs: req.FallbackURLs,
		Selectors:    req.Selectors,
	}

	// Handle enabled -- convert boolean to enabled_at timestamp
	if req.Enabled != nil {
		if *req.Enabled {
			now := time.Now()
			update.EnabledAt = &now
		} else {
			// Clear enabled_at to disable the source
			update.ClearEnabledAt = true
		}
	}

	// Update source
	if err := s.store.UpdateSource(sourceID, update); err != nil {
		s.handleError(c, err)
		return
	}

	// Return updated source
	source, err := s.store.GetSource(sourceID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, source)
}

// HandleDeleteSource handles DELETE /api/v1/sources/{id}.
func (s *SourceAPIServer) HandleDeleteSource(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid source ID"))
		return
	}

	if err := s.store.DeleteSource(sourceID); err != nil {
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
