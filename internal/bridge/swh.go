package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/envutil"
)

// softwareHeritage asks the Software Heritage archive to save an origin and
// polls the resulting save task until it produces a snapshot or fails. The
// poll loop is bounded; running out of attempts leaves the target in
// SUBMITTED so a later resubmit can pick it up.
type softwareHeritage struct {
	task        Task
	httpClient  *http.Client
	maxAttempts int
	pollDelay   time.Duration
}

func NewSoftwareHeritage(task Task) Depositor {
	return &softwareHeritage{
		task:        task,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		maxAttempts: envutil.Int("SWH_MAX_POLL_ATTEMPTS", 10),
		pollDelay:   envutil.Dur("SWH_POLL_DELAY", 10*time.Second),
	}
}

type swhSaveResponse struct {
	SaveRequestStatus string `json:"save_request_status"`
	RequestURL        string `json:"request_url"`
	SaveTaskStatus    string `json:"save_task_status"`
	SnapshotSWHID     string `json:"snapshot_swhid"`
}

func (s *softwareHeritage) Deposit(ctx context.Context) (*domain.DepositResult, error) {
	start := time.Now()
	log := s.task.Log.With("adapter", "swh", "target", s.task.Descriptor.RepoName)

	saved, statusCode, err := s.requestSave(ctx)
	if err != nil {
		return nil, err
	}
	if saved.SaveRequestStatus == "rejected" || saved.RequestURL == "" {
		result := failedResult(domain.DepositRejected, fmt.Errorf("save request rejected: status %d", statusCode))
		result.Response = &domain.TargetResponse{
			URL:         s.task.Descriptor.TargetURL,
			StatusCode:  statusCode,
			Duration:    elapsedSeconds(start),
			Status:      domain.DepositRejected,
			ContentType: domain.ContentTypeJSON,
		}
		return result, nil
	}
	log.Info("Save request accepted", "requestUrl", saved.RequestURL)

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollDelay):
		}

		state, pollStatus, err := s.pollSaveTask(ctx, saved.RequestURL)
		if err != nil {
			return nil, err
		}
		switch state.SaveTaskStatus {
		case "succeeded":
			result := domain.NewDepositResult()
			result.Status = domain.DepositFinish
			result.Response = &domain.TargetResponse{
				URL:        saved.RequestURL,
				StatusCode: pollStatus,
				Duration:   elapsedSeconds(start),
				Status:     domain.DepositFinish,
				Identifiers: []domain.IdentifierItem{{
					Value:    state.SnapshotSWHID,
					Protocol: domain.ProtocolSWHID,
				}},
				ContentType: domain.ContentTypeJSON,
			}
			return result, nil
		case "failed":
			result := failedResult(domain.DepositFailed, fmt.Errorf("save task failed"))
			result.Response = &domain.TargetResponse{
				URL:         saved.RequestURL,
				StatusCode:  pollStatus,
				Duration:    elapsedSeconds(start),
				Status:      domain.DepositFailed,
				ContentType: domain.ContentTypeJSON,
			}
			return result, nil
		}
		log.Debug("Save task still running", "attempt", attempt+1, "status", state.SaveTaskStatus)
	}

	// Not terminal yet. Leave the target resubmittable.
	result := domain.NewDepositResult()
	result.Status = domain.DepositSubmitted
	result.Notes = fmt.Sprintf("save task not terminal after %d polls", s.maxAttempts)
	result.Response = &domain.TargetResponse{
		URL:         saved.RequestURL,
		Duration:    elapsedSeconds(start),
		Status:      domain.DepositSubmitted,
		ContentType: domain.ContentTypeJSON,
	}
	return result, nil
}

func (s *softwareHeritage) requestSave(ctx context.Context) (*swhSaveResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.task.Descriptor.TargetURL, nil)
	if err != nil {
		return nil, 0, err
	}
	if s.task.Descriptor.Password != "" {
		req.Header.Set("Authorization", "Bearer "+s.task.Descriptor.Password)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("swh save request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &swhSaveResponse{SaveRequestStatus: "rejected"}, resp.StatusCode, nil
	}
	var parsed swhSaveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("swh save decode: %w", err)
	}
	return &parsed, resp.StatusCode, nil
}

func (s *softwareHeritage) pollSaveTask(ctx context.Context, requestURL string) (*swhSaveResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, 0, err
	}
	if s.task.Descriptor.Password != "" {
		req.Header.Set("Authorization", "Bearer "+s.task.Descriptor.Password)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("swh poll: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	var parsed swhSaveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("swh poll decode: %w", err)
	}
	return &parsed, resp.StatusCode, nil
}
