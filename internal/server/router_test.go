package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastations/packaging-service/internal/bridge"
	types "github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/handlers"
	"github.com/datastations/packaging-service/internal/middleware"
	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/dbctx"
	"github.com/datastations/packaging-service/internal/platform/logger"
	"github.com/datastations/packaging-service/internal/services"
)

const testAPIKey = "router-test-key"

type fakeSubmission struct {
	lastRelease string
	lastReq     services.SubmitRequest
	deleted     []string
	submitErr   error
}

func (f *fakeSubmission) Submit(ctx context.Context, releaseVersion string, req services.SubmitRequest) (*types.SubmitReceipt, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.lastRelease = releaseVersion
	f.lastReq = req
	return &types.SubmitReceipt{Status: "OK", DatasetID: req.DatasetID, StartProcessing: false}, nil
}

func (f *fakeSubmission) Resubmit(ctx context.Context, datasetID string) (*types.SubmitReceipt, error) {
	return &types.SubmitReceipt{Status: "OK", DatasetID: datasetID, StartProcessing: true}, nil
}

func (f *fakeSubmission) Delete(ctx context.Context, datasetID, ownerID string) error {
	if ownerID == "" {
		return apperr.ErrNotFound
	}
	f.deleted = append(f.deleted, datasetID)
	return nil
}

type fakeUpload struct {
	completed  [][2]string
	registered []services.UploadRegistration
	discarded  []string
}

func (f *fakeUpload) RegisterUpload(ctx context.Context, reg services.UploadRegistration) (*types.UploadRecord, error) {
	if reg.DatasetID == "missing" {
		return nil, apperr.ErrNotFound
	}
	f.registered = append(f.registered, reg)
	return &types.UploadRecord{ID: reg.UploadID, DatasetID: reg.DatasetID, FileName: reg.FileName}, nil
}

func (f *fakeUpload) DiscardUpload(ctx context.Context, uploadID string) error {
	f.discarded = append(f.discarded, uploadID)
	return nil
}

func (f *fakeUpload) CompleteUpload(ctx context.Context, datasetID, uploadID string) (*types.SubmitReceipt, error) {
	f.completed = append(f.completed, [2]string{datasetID, uploadID})
	return &types.SubmitReceipt{Status: "OK", DatasetID: datasetID, StartProcessing: true}, nil
}

type fakeAssets struct{}

func (fakeAssets) ProgressState(dbc dbctx.Context, datasetID string) (*types.Asset, error) {
	if datasetID == "missing" {
		return nil, apperr.ErrNotFound
	}
	return &types.Asset{DatasetID: datasetID, Title: "Test dataset"}, nil
}

func (fakeAssets) OwnerAssets(dbc dbctx.Context, ownerID string) (*types.OwnerAssets, error) {
	return &types.OwnerAssets{OwnerID: ownerID, Assets: []types.Asset{}}, nil
}

func testRouter(t *testing.T) (*gin.Engine, *fakeSubmission, *fakeUpload) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("test")
	require.NoError(t, err)

	submission := &fakeSubmission{}
	upload := &fakeUpload{}
	registry := bridge.NewRegistry(log)

	router := NewRouter(RouterConfig{
		ServiceName:     "packaging-service",
		ServiceVersion:  "test",
		AuthMiddleware:  middleware.NewAuthMiddleware(log, testAPIKey),
		DatasetHandler:  handlers.NewDatasetHandler(submission),
		UploadHandler:   handlers.NewUploadHandler(upload),
		RegistryHandler: handlers.NewRegistryHandler(registry),
		AssetHandler:    handlers.NewAssetHandler(fakeAssets{}),
	})
	return router, submission, upload
}

func do(router *gin.Engine, method, path, apiKey string, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doYAML(router *gin.Engine, method, path, apiKey string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	req.Header.Set("Content-Type", "application/x-yaml")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	router, _, _ := testRouter(t)

	rec := do(router, http.MethodGet, "/healthcheck", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(router, http.MethodGet, "/info", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "packaging-service", info["name"])
	assert.Equal(t, "test", info["version"])
}

func TestAuthRequired(t *testing.T) {
	router, _, _ := testRouter(t)

	rec := do(router, http.MethodGet, "/bridge-modules", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, http.MethodGet, "/bridge-modules", "wrong-key", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, http.MethodGet, "/bridge-modules", testAPIKey, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// The key is also accepted as a bearer token.
	req := httptest.NewRequest(http.MethodGet, "/bridge-modules", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	bearer := httptest.NewRecorder()
	router.ServeHTTP(bearer, req)
	assert.Equal(t, http.StatusOK, bearer.Code)
}

func TestSubmitRoute(t *testing.T) {
	router, submission, _ := testRouter(t)

	body := `{
		"dataset-id": "doi:10.17026/test-1",
		"title": "A dataset",
		"owner-id": "user1",
		"app-name": "test-app",
		"metadata": {"title": "A dataset"},
		"file-names": [{"name": "data.csv", "private": true}]
	}`
	rec := do(router, http.MethodPost, "/inbox/dataset/DRAFT", testAPIKey, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt types.SubmitReceipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, "OK", receipt.Status)
	assert.Equal(t, "doi:10.17026/test-1", receipt.DatasetID)
	assert.False(t, receipt.StartProcessing)

	assert.Equal(t, "DRAFT", submission.lastRelease)
	assert.Equal(t, "user1", submission.lastReq.OwnerID)
	require.Len(t, submission.lastReq.FileNames, 1)
	assert.Equal(t, "data.csv", submission.lastReq.FileNames[0].Name)
	assert.True(t, submission.lastReq.FileNames[0].Private)

	// Malformed payloads are rejected before the service is reached.
	rec = do(router, http.MethodPost, "/inbox/dataset/DRAFT", testAPIKey, `{"dataset-id": 42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitServiceErrorMapping(t *testing.T) {
	router, submission, _ := testRouter(t)
	submission.submitErr = apperr.ErrConflict

	rec := do(router, http.MethodPost, "/inbox/dataset/PUBLISH", testAPIKey, `{"dataset-id": "d1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var envelope handlers.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "conflict", envelope.Error.Code)
}

func TestDeleteRoute(t *testing.T) {
	router, submission, _ := testRouter(t)

	// Without an owner header the dataset is not visible.
	rec := do(router, http.MethodDelete, "/inbox/dataset/ds-1", testAPIKey, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, "/inbox/dataset/ds-1", nil)
	req.Header.Set("X-Api-Key", testAPIKey)
	req.Header.Set("X-Owner-Id", "user1")
	owned := httptest.NewRecorder()
	router.ServeHTTP(owned, req)
	require.Equal(t, http.StatusOK, owned.Code)
	assert.Equal(t, []string{"ds-1"}, submission.deleted)
}

func TestUploadCompleteRoute(t *testing.T) {
	router, _, upload := testRouter(t)

	rec := do(router, http.MethodPatch, "/inbox/files/ds-1/upload-9", testAPIKey, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var receipt types.SubmitReceipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.True(t, receipt.StartProcessing)
	require.Len(t, upload.completed, 1)
	assert.Equal(t, [2]string{"ds-1", "upload-9"}, upload.completed[0])
}

func TestTusHookRoute(t *testing.T) {
	router, _, upload := testRouter(t)

	// The daemon announces a new upload through its post-create hook.
	body := `{"Type":"post-create","Event":{"Upload":{"ID":"u-1","Size":42,` +
		`"MetaData":{"datasetId":"ds-1","fileName":"data.csv","filetype":"text/csv"}}}}`
	rec := do(router, http.MethodPost, "/tus-hook", testAPIKey, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, upload.registered, 1)
	reg := upload.registered[0]
	assert.Equal(t, "u-1", reg.UploadID)
	assert.Equal(t, "ds-1", reg.DatasetID)
	assert.Equal(t, "data.csv", reg.FileName)
	assert.Equal(t, int64(42), reg.Size)
	assert.Equal(t, "text/csv", reg.MimeType)

	// Flat payload generation carries the hook name in a header.
	req := httptest.NewRequest(http.MethodPost, "/tus-hook", strings.NewReader(`{"Upload":{"ID":"u-2"}}`))
	req.Header.Set("X-Api-Key", testAPIKey)
	req.Header.Set("Hook-Name", "post-terminate")
	req.Header.Set("Content-Type", "application/json")
	terminated := httptest.NewRecorder()
	router.ServeHTTP(terminated, req)
	require.Equal(t, http.StatusOK, terminated.Code)
	assert.Equal(t, []string{"u-2"}, upload.discarded)

	// Service errors map to HTTP status codes.
	missing := `{"Type":"post-create","Event":{"Upload":{"ID":"u-3",` +
		`"MetaData":{"datasetId":"missing","fileName":"data.csv"}}}}`
	rec = do(router, http.MethodPost, "/tus-hook", testAPIKey, missing)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Other hook types are acknowledged without effect.
	rec = do(router, http.MethodPost, "/tus-hook", testAPIKey, `{"Type":"pre-finish","Event":{"Upload":{"ID":"u-4"}}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, upload.registered, 1)
}

func TestRegistryRoutes(t *testing.T) {
	router, _, _ := testRouter(t)

	manifest := "name: demo.dataverse\nkind: Dataverse\ndescription: demo alias\n"
	rec := doYAML(router, http.MethodPost, "/register-bridge-module/demo.dataverse/false", testAPIKey, manifest)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Re-registering without overwrite conflicts.
	rec = doYAML(router, http.MethodPost, "/register-bridge-module/demo.dataverse/false", testAPIKey, manifest)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doYAML(router, http.MethodPost, "/register-bridge-module/demo.dataverse/true", testAPIKey, manifest)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Only yaml bodies are accepted.
	rec = do(router, http.MethodPost, "/register-bridge-module/demo.dataverse/true", testAPIKey, manifest)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	// A manifest naming an unknown kind is refused.
	rec = doYAML(router, http.MethodPost, "/register-bridge-module/bad/false", testAPIKey, "name: bad\nkind: NotCompiled\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The endpoint name must match the manifest.
	rec = doYAML(router, http.MethodPost, "/register-bridge-module/other.name/true", testAPIKey, manifest)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/bridge-modules", testAPIKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Modules []string `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Contains(t, listing.Modules, "demo.dataverse")
	assert.Contains(t, listing.Modules, "Dataverse")
}

func TestProgressRoutes(t *testing.T) {
	router, _, _ := testRouter(t)

	rec := do(router, http.MethodGet, "/progress-state/ds-1", testAPIKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var asset types.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asset))
	assert.Equal(t, "ds-1", asset.DatasetID)

	rec = do(router, http.MethodGet, "/progress-state/missing", testAPIKey, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodGet, "/dataset-assets/user1", testAPIKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var owned types.OwnerAssets
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &owned))
	assert.Equal(t, "user1", owned.OwnerID)
}
