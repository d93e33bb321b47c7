package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
)

// ProviderHandler serves the provider catalog and diagnostics endpoints.
type ProviderHandler struct {
	gateway *provider.Gateway
}

// NewProviderHandler constructs a ProviderHandler.
func NewProviderHandler(gateway *provider.Gateway) *ProviderHandler {
	return &ProviderHandler{gateway: gateway}
}

// List returns every known provider, including coming-soon entries.
func (h *ProviderHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": provider.ListProviders()})
}

// Models returns the models a provider currently serves. An unreachable
// local backend yields an empty list, not an error.
func (h *ProviderHandler) Models(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if _, ok := provider.Lookup(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	models, errList := h.gateway.ListModels(c.Request.Context(), name, c.Query("base_url"))
	if errList != nil {
		respondServiceError(c, errList)
		return
	}
	if models == nil {
		models = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"provider": name, "models": models})
}

// testConnectionRequest defines the body for connection tests.
type testConnectionRequest struct {
	Provider string `json:"provider"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
}

// TestConnection probes a provider backend. It always answers 200; the
// probe outcome is in the body.
func (h *ProviderHandler) TestConnection(c *gin.Context) {
	var body testConnectionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Provider)
	if _, ok := provider.Lookup(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	ok, message := h.gateway.TestConnection(c.Request.Context(), name, body.BaseURL, body.APIKey)
	c.JSON(http.StatusOK, gin.H{"provider": name, "success": ok, "message": message})
}
