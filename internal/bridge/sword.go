package bridge

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/datastations/packaging-service/internal/domain"
	"github.com/datastations/packaging-service/internal/platform/envutil"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

// sword packages the dataset's content files into a zip bag, POSTs it to a
// SWORD v2 collection, then polls the deposit statement until the server
// reaches a terminal state.
type sword struct {
	task        Task
	httpClient  *http.Client
	maxAttempts int
	pollDelay   time.Duration
}

func NewSword(task Task) Depositor {
	return &sword{
		task:        task,
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
		maxAttempts: envutil.Int("SWORD_MAX_POLL_ATTEMPTS", 10),
		pollDelay:   envutil.Dur("SWORD_POLL_DELAY", 10*time.Second),
	}
}

type atomEntry struct {
	XMLName xml.Name   `xml:"entry"`
	ID      string     `xml:"id"`
	Links   []atomLink `xml:"link"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type atomFeed struct {
	XMLName    xml.Name       `xml:"feed"`
	Categories []atomCategory `xml:"category"`
	Entries    []struct {
		Categories []atomCategory `xml:"category"`
	} `xml:"entry"`
}

type atomCategory struct {
	Term  string `xml:"term,attr"`
	Label string `xml:"label,attr"`
}

func (s *sword) Deposit(ctx context.Context) (*domain.DepositResult, error) {
	start := time.Now()
	log := s.task.Log.With("adapter", "sword", "target", s.task.Descriptor.RepoName)

	bag, err := s.buildBag(ctx)
	if err != nil {
		return nil, err
	}

	receipt, statusCode, rawBody, err := s.postBag(ctx, bag)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		result := failedResult(domain.DepositRejected, fmt.Errorf("sword deposit: status %d", statusCode))
		result.Response = &domain.TargetResponse{
			URL:         s.task.Descriptor.TargetURL,
			StatusCode:  statusCode,
			Duration:    elapsedSeconds(start),
			Status:      domain.DepositRejected,
			Content:     rawBody,
			ContentType: domain.ContentTypeXML,
		}
		return result, nil
	}
	log.Info("Bag deposited", "receiptId", receipt.ID)

	statementURL := receipt.statementLink()
	finalState := "SUBMITTED"
	if statementURL != "" {
		finalState, err = s.pollStatement(ctx, statementURL, log)
		if err != nil {
			return nil, err
		}
	}

	status := swordStateToStatus(finalState)
	result := domain.NewDepositResult()
	result.Status = status
	if !status.IsTerminalSuccess() && !status.IsTerminalFailure() {
		result.Notes = fmt.Sprintf("statement state %s after %d polls", finalState, s.maxAttempts)
	}
	result.Response = &domain.TargetResponse{
		URL:         s.task.Descriptor.TargetURL,
		StatusCode:  statusCode,
		Duration:    elapsedSeconds(start),
		Status:      status,
		Message:     finalState,
		Content:     rawBody,
		ContentType: domain.ContentTypeXML,
	}
	if status.IsTerminalSuccess() && receipt.ID != "" {
		result.Response.Identifiers = []domain.IdentifierItem{{
			Value:    receipt.ID,
			Protocol: domain.ProtocolURNUUID,
		}}
	}
	return result, nil
}

func (e *atomEntry) statementLink() string {
	for _, link := range e.Links {
		if strings.Contains(link.Rel, "statement") {
			return link.Href
		}
	}
	return ""
}

func swordStateToStatus(state string) domain.DepositStatus {
	switch strings.ToUpper(state) {
	case "ARCHIVED":
		return domain.DepositAccepted
	case "INVALID", "REJECTED":
		return domain.DepositRejected
	case "FAILED":
		return domain.DepositFailed
	default:
		return domain.DepositSubmitted
	}
}

// buildBag zips the content files under a data/ prefix.
func (s *sword) buildBag(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	for _, file := range s.task.contentFiles() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		blob, err := os.Open(file.Path)
		if err != nil {
			return nil, err
		}
		entry, err := archive.Create("data/" + file.Name)
		if err != nil {
			blob.Close()
			return nil, err
		}
		if _, err := io.Copy(entry, blob); err != nil {
			blob.Close()
			return nil, err
		}
		blob.Close()
	}
	if err := archive.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *sword) postBag(ctx context.Context, bag []byte) (*atomEntry, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.task.Descriptor.TargetURL, bytes.NewReader(bag))
	if err != nil {
		return nil, 0, "", err
	}
	req.SetBasicAuth(s.task.Descriptor.Username, s.task.Descriptor.Password)
	req.Header.Set("Content-Type", "application/zip")
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", s.task.Dataset.ID))
	req.Header.Set("Packaging", "http://purl.org/net/sword/package/BagIt")
	req.Header.Set("In-Progress", "false")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("sword deposit: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, string(body), nil
	}
	var receipt atomEntry
	if err := xml.Unmarshal(body, &receipt); err != nil {
		return nil, resp.StatusCode, string(body), fmt.Errorf("sword receipt decode: %w", err)
	}
	return &receipt, resp.StatusCode, string(body), nil
}

func (s *sword) pollStatement(ctx context.Context, statementURL string, log *logger.Logger) (string, error) {
	state := "SUBMITTED"
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.pollDelay):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statementURL, nil)
		if err != nil {
			return "", err
		}
		req.SetBasicAuth(s.task.Descriptor.Username, s.task.Descriptor.Password)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("sword statement: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", readErr
		}

		var feed atomFeed
		if err := xml.Unmarshal(body, &feed); err != nil {
			return "", fmt.Errorf("sword statement decode: %w", err)
		}
		state = statementState(&feed)
		switch strings.ToUpper(state) {
		case "ARCHIVED", "INVALID", "REJECTED", "FAILED":
			return state, nil
		}
		log.Debug("Statement not terminal", "attempt", attempt+1, "state", state)
	}
	return state, nil
}

func statementState(feed *atomFeed) string {
	for _, category := range feed.Categories {
		if category.Term != "" {
			return category.Term
		}
	}
	for _, entry := range feed.Entries {
		for _, category := range entry.Categories {
			if category.Term != "" {
				return category.Term
			}
		}
	}
	return "SUBMITTED"
}
