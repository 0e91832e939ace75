package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datastations/packaging-service/internal/bridge"
)

type RegistryHandler struct {
	registry *bridge.Registry
}

func NewRegistryHandler(registry *bridge.Registry) *RegistryHandler {
	return &RegistryHandler{registry: registry}
}

// Register handles POST /register-bridge-module/:name/:overwrite with a yaml
// manifest body.
func (h *RegistryHandler) Register(c *gin.Context) {
	if !yamlContentType(c.ContentType()) {
		RespondError(c, http.StatusUnsupportedMediaType, "unsupported_media_type",
			fmt.Errorf("manifest body must be yaml, got %q", c.ContentType()))
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 64*1024))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}
	overwrite := c.Param("overwrite") == "true"
	if err := h.registry.Register(raw, c.Param("name"), overwrite); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "registered", "name": c.Param("name")})
}

func yamlContentType(ct string) bool {
	switch ct {
	case "", "application/x-yaml", "application/yaml", "text/yaml", "text/x-yaml", "text/plain":
		return true
	}
	return false
}

// List handles GET /bridge-modules.
func (h *RegistryHandler) List(c *gin.Context) {
	RespondOK(c, gin.H{"modules": h.registry.Names()})
}
