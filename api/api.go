// Package api exposes the harvested grant catalog over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/grantscout/grantscout/grants"
	"github.com/grantscout/grantscout/harvest"
)

// GrantAPIServer represents the HTTP API server for browsing grants and
// triggering harvest passes.
type GrantAPIServer struct {
	store     *grants.Store
	harvester *harvest.Harvester
}

// NewGrantAPIServer creates a new grant API server. The harvester may be nil
// when harvest-on-demand is not wanted.
func NewGrantAPIServer(store *grants.Store, harvester *harvest.Harvester) *GrantAPIServer {
	return &GrantAPIServer{
		store:     store,
		harvester: harvester,
	}
}

// SetupRouter configures the Gin router with all grant API routes.
func (s *GrantAPIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
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

// RegisterRoutes attaches the grant routes to an existing router.
func (s *GrantAPIServer) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.GET("/grants", s.HandleListGrants)
	api.GET("/grants/:id", s.HandleGetGrant)
	api.POST("/harvest", s.HandleHarvest)
}

// ListGrantsResponse represents the response for GET /api/v1/grants.
type ListGrantsResponse struct {
	Grants []grants.Grant `json:"grants"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
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

// HandleListGrants handles GET /api/v1/grants.
func (s *GrantAPIServer) HandleListGrants(c *gin.Context) {
	filter := grants.Filter{}

	if sourceParam := c.Query("source_id"); sourceParam != "" {
		sourceID, err := uuid.Parse(sourceParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid source_id parameter"))
			return
		}
		filter.SourceID = &sourceID
	}

	if c.Query("exclude_sample") == "true" {
		filter.ExcludeSample = true
	}

	// Total is counted before pagination is applied
	all, err := s.store.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to list grants: "+err.Error()))
		return
	}
	total := len(all)

	// Parse pagination parameters
	limit := 50 // default
	if limitParam := c.Query("limit"); limitParam != "" {
		parsedLimit, err := strconv.Atoi(limitParam)
		if err != nil || parsedLimit < 1 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid limit parameter"))
			return
		}
		if parsedLimit > 1000 {
			parsedLimit = 1000
		}
		limit = parsedLimit
	}

	offset := 0 // default
	if offsetParam := c.Query("offset"); offsetParam != "" {
		parsedOffset, err := strconv.Atoi(offsetParam)
		if err != nil || parsedOffset < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid offset parameter"))
			return
		}
		offset = parsedOffset
	}

	c.JSON(http.StatusOK, ListGrantsResponse{
		Grants: paginate(all, offset, limit),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// paginate returns a slice of grants for the given offset and limit.
func paginate(all []grants.Grant, offset, limit int) []grants.Grant {
	if offset >= len(all) {
		return []grants.Grant{}
	}

	end := min(offset+limit, len(all))

	return all[offset:end]
}

// HandleGetGrant handles GET /api/v1/grants/{id}.
func (s *GrantAPIServer) HandleGetGrant(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_id", "Invalid grant ID: "+err.Error()))
		return
	}

	grant, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, grants.ErrGrantNotFound) {
			c.JSON(http.StatusNotFound, errorResponse("not_found", "Grant with ID "+id.String()+" not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to get grant: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, grant)
}

// HandleHarvest handles POST /api/v1/harvest.
func (s *GrantAPIServer) HandleHarvest(c *gin.Context) {
	if s.harvester == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("unavailable", "Harvesting is not enabled on this server"))
		return
	}

	result, err := s.harvester.Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Harvest failed: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, result)
}
