package tus

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/datastations/packaging-service/internal/platform/envutil"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

// Client talks to the resumable-upload daemon that fronts file ingest. The
// only call the deposit flow needs is discarding a finished upload so the
// daemon stops tracking it.
type Client interface {
	DeleteUpload(ctx context.Context, uploadID string) error
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimSpace(os.Getenv("TUS_BASE_URL")),
		Timeout: envutil.Dur("TUS_TIMEOUT", 15*time.Second),
	}
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing TUS_BASE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &client{
		log:        log.With("client", "TusClient"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func (c *client) DeleteUpload(ctx context.Context, uploadID string) error {
	url := fmt.Sprintf("%s/files/%s", c.baseURL, uploadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Tus-Resumable", "1.0.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tus delete: %w", err)
	}
	defer resp.Body.Close()

	// 404 means the daemon already forgot the upload, which is fine.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("tus delete %s: status %d", uploadID, resp.StatusCode)
	}
	return nil
}
