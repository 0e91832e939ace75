package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datastations/packaging-service/internal/services"
)

type UploadHandler struct {
	uploadService services.UploadService
}

func NewUploadHandler(uploadService services.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Complete handles PATCH /inbox/files/:dataset_id/:upload_id.
func (h *UploadHandler) Complete(c *gin.Context) {
	receipt, err := h.uploadService.CompleteUpload(c.Request.Context(),
		c.Param("dataset_id"), c.Param("upload_id"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, receipt)
}

// tusHookUpload is the upload section of the daemon's hook payload. The
// uploader declares the destination through tus metadata.
type tusHookUpload struct {
	ID       string            `json:"ID"`
	Size     int64             `json:"Size"`
	MetaData map[string]string `json:"MetaData"`
}

// tusHookRequest covers both hook payload generations: the event envelope
// and the flat body with the hook name in a header.
type tusHookRequest struct {
	Type  string `json:"Type"`
	Event struct {
		Upload tusHookUpload `json:"Upload"`
	} `json:"Event"`
	Upload tusHookUpload `json:"Upload"`
}

// TusHook handles POST /tus-hook, the upload daemon's HTTP hook endpoint. A
// post-create hook records the upload side channel; a post-terminate hook
// discards it. Other hook types are acknowledged without effect.
func (h *UploadHandler) TusHook(c *gin.Context) {
	var req tusHookRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}
	hookType := req.Type
	if hookType == "" {
		hookType = c.GetHeader("Hook-Name")
	}
	upload := req.Event.Upload
	if upload.ID == "" {
		upload = req.Upload
	}

	switch hookType {
	case "post-create":
		fileName := upload.MetaData["fileName"]
		if fileName == "" {
			fileName = upload.MetaData["filename"]
		}
		record, err := h.uploadService.RegisterUpload(c.Request.Context(), services.UploadRegistration{
			UploadID:  upload.ID,
			DatasetID: upload.MetaData["datasetId"],
			FileName:  fileName,
			Size:      upload.Size,
			MimeType:  upload.MetaData["filetype"],
		})
		if err != nil {
			RespondServiceError(c, err)
			return
		}
		RespondOK(c, gin.H{"status": "registered", "upload-id": record.ID})
	case "post-terminate":
		if err := h.uploadService.DiscardUpload(c.Request.Context(), upload.ID); err != nil {
			RespondServiceError(c, err)
			return
		}
		RespondOK(c, gin.H{"status": "discarded", "upload-id": upload.ID})
	default:
		RespondOK(c, gin.H{"status": "ignored"})
	}
}
