package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/datastations/packaging-service/internal/domain"
)

// zenodo creates a deposition, streams each content file into its bucket,
// attaches the transformed metadata, and optionally publishes.
type zenodo struct {
	task       Task
	httpClient *http.Client
}

func NewZenodo(task Task) Depositor {
	return &zenodo{
		task:       task,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

type zenodoDeposition struct {
	ID    int64 `json:"id"`
	Links struct {
		Bucket string `json:"bucket"`
		HTML   string `json:"html"`
	} `json:"links"`
	Metadata struct {
		PrereserveDOI struct {
			DOI string `json:"doi"`
		} `json:"prereserve_doi"`
	} `json:"metadata"`
	DOI string `json:"doi"`
}

func (z *zenodo) Deposit(ctx context.Context) (*domain.DepositResult, error) {
	start := time.Now()
	log := z.task.Log.With("adapter", "zenodo", "target", z.task.Descriptor.RepoName)

	deposition, statusCode, rawBody, err := z.createDeposition(ctx)
	if err != nil {
		return nil, err
	}
	if deposition == nil {
		result := failedResult(domain.DepositRejected, fmt.Errorf("zenodo create: status %d", statusCode))
		result.Response = &domain.TargetResponse{
			URL:         z.task.Descriptor.TargetURL,
			StatusCode:  statusCode,
			Duration:    elapsedSeconds(start),
			Status:      domain.DepositRejected,
			Content:     rawBody,
			ContentType: domain.ContentTypeJSON,
		}
		return result, nil
	}
	log.Info("Deposition created", "depositionId", deposition.ID)

	if err := z.attachMetadata(ctx, deposition.ID); err != nil {
		return nil, fmt.Errorf("attach metadata: %w", err)
	}
	for _, file := range z.task.contentFiles() {
		if err := z.uploadFile(ctx, deposition.Links.Bucket, file); err != nil {
			return nil, fmt.Errorf("upload %s: %w", file.Name, err)
		}
	}

	doi := deposition.DOI
	if doi == "" {
		doi = deposition.Metadata.PrereserveDOI.DOI
	}
	if strings.EqualFold(z.task.Descriptor.InitialReleaseVersion, string(domain.ReleasePublish)) {
		publishedDOI, err := z.publish(ctx, deposition.ID)
		if err != nil {
			return nil, fmt.Errorf("publish deposition %d: %w", deposition.ID, err)
		}
		if publishedDOI != "" {
			doi = publishedDOI
		}
	}
	status := domain.DepositFinish

	result := domain.NewDepositResult()
	result.Status = status
	result.Response = &domain.TargetResponse{
		URL:         z.task.Descriptor.TargetURL,
		StatusCode:  statusCode,
		Duration:    elapsedSeconds(start),
		Status:      status,
		Content:     rawBody,
		ContentType: domain.ContentTypeJSON,
	}
	if doi != "" {
		result.Response.Identifiers = []domain.IdentifierItem{{
			Value:    doi,
			Protocol: domain.ProtocolDOI,
			URL:      deposition.Links.HTML,
		}}
	}
	return result, nil
}

func (z *zenodo) tokenURL(rawURL string) string {
	separator := "?"
	if strings.Contains(rawURL, "?") {
		separator = "&"
	}
	return rawURL + separator + "access_token=" + z.task.Descriptor.Password
}

func (z *zenodo) createDeposition(ctx context.Context) (*zenodoDeposition, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.tokenURL(z.task.Descriptor.TargetURL), strings.NewReader("{}"))
	if err != nil {
		return nil, 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("zenodo create: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, string(body), nil
	}
	var deposition zenodoDeposition
	if err := json.Unmarshal(body, &deposition); err != nil {
		return nil, resp.StatusCode, string(body), fmt.Errorf("zenodo create decode: %w", err)
	}
	return &deposition, resp.StatusCode, string(body), nil
}

func (z *zenodo) attachMetadata(ctx context.Context, depositionID int64) error {
	metadata, err := z.task.transformedMetadata(ctx, "zenodo.json")
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%d", strings.TrimRight(z.task.Descriptor.TargetURL, "/"), depositionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, z.tokenURL(url), strings.NewReader(metadata))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := z.httpClient.Do(req)
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

func (z *zenodo) uploadFile(ctx context.Context, bucketURL string, file *domain.DataFile) error {
	blob, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer blob.Close()

	url := fmt.Sprintf("%s/%s", strings.TrimRight(bucketURL, "/"), file.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, z.tokenURL(url), blob)
	if err != nil {
		return err
	}
	req.ContentLength = file.Size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (z *zenodo) publish(ctx context.Context, depositionID int64) (string, error) {
	url := fmt.Sprintf("%s/%d/actions/publish", strings.TrimRight(z.task.Descriptor.TargetURL, "/"), depositionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.tokenURL(url), nil)
	if err != nil {
		return "", err
	}

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var published zenodoDeposition
	if err := json.Unmarshal(body, &published); err != nil {
		return "", nil
	}
	return published.DOI, nil
}
