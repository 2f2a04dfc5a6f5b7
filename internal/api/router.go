// Package api exposes the archive over HTTP for the serve subcommand:
// full-text search and top-N ranking as JSON, with an optional Redis result
// cache in front of search queries.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tootsearch/tootsearch/internal/cache"
	"github.com/tootsearch/tootsearch/internal/models"
	"github.com/tootsearch/tootsearch/internal/report"
	"github.com/tootsearch/tootsearch/internal/search"
	"github.com/tootsearch/tootsearch/internal/store"
	"github.com/tootsearch/tootsearch/pkg/logging"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
	searchCacheTTL  = 60 * time.Second
)

// Router sets up API routes
type Router struct {
	store  *store.Store
	index  *search.Index
	cache  *cache.Cache
	logger *zap.Logger
}

// NewRouter creates a new API router. redisCache may be nil when caching is
// disabled.
func NewRouter(st *store.Store, idx *search.Index, redisCache *cache.Cache) *Router {
	return &Router{
		store:  st,
		index:  idx,
		cache:  redisCache,
		logger: logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/search", r.searchHandler)
	engine.GET("/top", r.topHandler)
}

func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "tootsearch-api",
	})
}

// searchHandler handles GET /search?q=...
func (r *Router) searchHandler(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required parameter: q"})
		return
	}

	key := cache.HashKey("search", query)
	if cached, err := r.cache.Get(c.Request.Context(), key); err == nil {
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	ids, err := r.index.Search(c.Request.Context(), query)
	if err != nil {
		r.logger.Error("Search failed", zap.String("query", query), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	results := make([]models.Status, 0, len(ids))
	for _, id := range ids {
		status, err := r.store.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				r.logger.Warn("Indexed status missing from archive", zap.Int64("id", id))
				continue
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "archive read failed"})
			return
		}
		results = append(results, *status)
	}

	body, err := json.Marshal(gin.H{"query": query, "results": results})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode failed"})
		return
	}
	if err := r.cache.Set(c.Request.Context(), key, string(body), searchCacheTTL); err != nil &&
		!errors.Is(err, cache.ErrCacheDisabled) {
		r.logger.Warn("Failed to cache search result", zap.Error(err))
	}
	c.Data(http.StatusOK, "application/json", body)
}

// topHandler handles GET /top?category=...&limit=...
func (r *Router) topHandler(c *gin.Context) {
	category, err := report.ParseCategory(c.DefaultQuery("category", string(report.CategoryFavourites)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := defaultTopLimit
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	statuses, err := r.store.Scan(c.Request.Context())
	if err != nil {
		r.logger.Error("Archive scan failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive read failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"results":  report.TopStatuses(statuses, category, limit),
	})
}
