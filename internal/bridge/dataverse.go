package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/datastations/packaging-service/internal/domain"
)

// dataverse deposits a dataset into a Dataverse installation: one dataset
// create call, one add call per content file, then an optional publish.
type dataverse struct {
	task       Task
	httpClient *http.Client
}

func NewDataverse(task Task) Depositor {
	return &dataverse{
		task:       task,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

type dataverseCreateResponse struct {
	Status string `json:"status"`
	Data   struct {
		ID           int64  `json:"id"`
		PersistentID string `json:"persistentId"`
	} `json:"data"`
	Message string `json:"message"`
}

func (d *dataverse) Deposit(ctx context.Context) (*domain.DepositResult, error) {
	start := time.Now()
	log := d.task.Log.With("adapter", "dataverse", "target", d.task.Descriptor.RepoName)

	metadata, err := d.task.transformedMetadata(ctx, "dataset.json")
	if err != nil {
		return nil, err
	}

	persistentID, statusCode, rawBody, err := d.createDataset(ctx, metadata)
	if err != nil {
		return nil, err
	}
	if persistentID == "" {
		log.Error("Dataverse rejected dataset", "status", statusCode)
		result := failedResult(domain.DepositRejected, fmt.Errorf("dataverse create: status %d", statusCode))
		result.Response = &domain.TargetResponse{
			URL:         d.task.Descriptor.TargetURL,
			StatusCode:  statusCode,
			Duration:    elapsedSeconds(start),
			Status:      domain.DepositRejected,
			Content:     rawBody,
			ContentType: domain.ContentTypeJSON,
		}
		return result, nil
	}
	log.Info("Dataset created in dataverse", "persistentId", persistentID)

	for _, file := range d.task.contentFiles() {
		if err := d.addFile(ctx, persistentID, file); err != nil {
			return nil, fmt.Errorf("add file %s: %w", file.Name, err)
		}
	}

	if strings.EqualFold(d.task.Descriptor.InitialReleaseVersion, string(domain.ReleasePublish)) {
		if err := d.publish(ctx, persistentID); err != nil {
			return nil, fmt.Errorf("publish %s: %w", persistentID, err)
		}
		log.Info("Dataset published in dataverse", "persistentId", persistentID)
	}
	status := domain.DepositFinish

	result := domain.NewDepositResult()
	result.Status = status
	result.Response = &domain.TargetResponse{
		URL:        d.task.Descriptor.TargetURL,
		StatusCode: statusCode,
		Duration:   elapsedSeconds(start),
		Status:     status,
		Identifiers: []domain.IdentifierItem{{
			Value:    persistentID,
			Protocol: domain.ProtocolDOI,
			URL:      fmt.Sprintf("%s/dataset.xhtml?persistentId=%s", strings.TrimRight(d.task.Descriptor.BaseURL, "/"), persistentID),
		}},
		Content:     rawBody,
		ContentType: domain.ContentTypeJSON,
	}
	return result, nil
}

func (d *dataverse) createDataset(ctx context.Context, metadata string) (string, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.task.Descriptor.TargetURL, strings.NewReader(metadata))
	if err != nil {
		return "", 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dataverse-key", d.task.Descriptor.Password)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", 0, "", fmt.Errorf("dataverse create: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, string(body), nil
	}
	var parsed dataverseCreateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", resp.StatusCode, string(body), fmt.Errorf("dataverse create decode: %w", err)
	}
	return parsed.Data.PersistentID, resp.StatusCode, string(body), nil
}

func (d *dataverse) addFile(ctx context.Context, persistentID string, file *domain.DataFile) error {
	blob, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer blob.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, blob); err != nil {
		return err
	}
	jsonData, err := json.Marshal(map[string]interface{}{
		"description": file.Name,
		"restrict":    file.Permission == domain.FilePrivate,
	})
	if err != nil {
		return err
	}
	if err := writer.WriteField("jsonData", string(jsonData)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/datasets/:persistentId/add?persistentId=%s",
		strings.TrimRight(d.task.Descriptor.BaseURL, "/"), persistentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Dataverse-key", d.task.Descriptor.Password)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (d *dataverse) publish(ctx context.Context, persistentID string) error {
	url := fmt.Sprintf("%s/api/datasets/:persistentId/actions/:publish?persistentId=%s&type=major",
		strings.TrimRight(d.task.Descriptor.BaseURL, "/"), persistentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Dataverse-key", d.task.Descriptor.Password)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
