package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datastations/packaging-service/internal/services"
)

type DatasetHandler struct {
	submissionService services.SubmissionService
}

func NewDatasetHandler(submissionService services.SubmissionService) *DatasetHandler {
	return &DatasetHandler{submissionService: submissionService}
}

// Submit handles POST /inbox/dataset/:release_version.
func (h *DatasetHandler) Submit(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}
	receipt, err := h.submissionService.Submit(c.Request.Context(), c.Param("release_version"), req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, receipt)
}

// Resubmit handles POST /inbox/resubmit/:dataset_id.
func (h *DatasetHandler) Resubmit(c *gin.Context) {
	receipt, err := h.submissionService.Resubmit(c.Request.Context(), c.Param("dataset_id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, receipt)
}

// Delete handles DELETE /inbox/dataset/:dataset_id. The owner travels in a
// header so a caller can only delete what it owns.
func (h *DatasetHandler) Delete(c *gin.Context) {
	ownerID := c.GetHeader("X-Owner-Id")
	if err := h.submissionService.Delete(c.Request.Context(), c.Param("dataset_id"), ownerID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "deleted", "dataset-id": c.Param("dataset_id")})
}
