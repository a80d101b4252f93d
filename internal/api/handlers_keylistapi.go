// Package api serves a read-only HTTP view of the key list. It only ever sees
// a keystore.Lister, so no handler can reach sealed key material.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-key-vault/pkg/keystore"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NetworkResponse is one group of the key list.
type NetworkResponse struct {
	Network string              `json:"network"`
	Keys    []keyvault.KeyEntry `json:"keys"`
}

// API holds the handler dependencies.
type API struct {
	Keys   keystore.Lister
	Logger zerolog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(a *API, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware(allowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/keys", a.ListKeysHandler)
	r.GET("/keys/:id", a.GetKeyHandler)
	r.GET("/networks", a.ListNetworksHandler)
	return r
}

// ListKeysHandler returns every stored entry, optionally filtered by the
// network query parameter.
func (a *API) ListKeysHandler(c *gin.Context) {
	entries, ok := a.list(c)
	if !ok {
		return
	}
	if network := c.Query("network"); network != "" {
		_, groups := keyvault.GroupByNetwork(entries)
		entries = groups[network]
	}
	if entries == nil {
		entries = []keyvault.KeyEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// GetKeyHandler returns one entry by id.
func (a *API) GetKeyHandler(c *gin.Context) {
	id := c.Param("id")
	entries, ok := a.list(c)
	if !ok {
		return
	}
	for _, e := range entries {
		if e.ID == id {
			c.JSON(http.StatusOK, e)
			return
		}
	}
	a.Logger.Debug().Str("entry_id", id).Msg("Key not found")
	c.JSON(http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: "Key not found"})
}

// ListNetworksHandler returns the key list grouped by network, in first-seen order.
func (a *API) ListNetworksHandler(c *gin.Context) {
	entries, ok := a.list(c)
	if !ok {
		return
	}
	networks, groups := keyvault.GroupByNetwork(entries)
	resp := make([]NetworkResponse, 0, len(networks))
	for _, n := range networks {
		resp = append(resp, NetworkResponse{Network: n, Keys: groups[n]})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) list(c *gin.Context) ([]keyvault.KeyEntry, bool) {
	entries, err := a.Keys.List(c.Request.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("Failed to list keys")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL", Message: "Failed to list keys"})
		return nil, false
	}
	return entries, true
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && originAllowed(origin, allowed) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
