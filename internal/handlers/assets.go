package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/datastations/packaging-service/internal/platform/dbctx"
	"github.com/datastations/packaging-service/internal/services"
)

type AssetHandler struct {
	assetService services.AssetService
}

func NewAssetHandler(assetService services.AssetService) *AssetHandler {
	return &AssetHandler{assetService: assetService}
}

// ProgressState handles GET /progress-state/:dataset_id.
func (h *AssetHandler) ProgressState(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	asset, err := h.assetService.ProgressState(dbc, c.Param("dataset_id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, asset)
}

// OwnerAssets handles GET /dataset-assets/:owner_id.
func (h *AssetHandler) OwnerAssets(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	assets, err := h.assetService.OwnerAssets(dbc, c.Param("owner_id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, assets)
}
