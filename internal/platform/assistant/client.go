package assistant

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
	"github.com/datastations/packaging-service/internal/platform/apperr"
	"github.com/datastations/packaging-service/internal/platform/envutil"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

// Client fetches the per-application chain descriptor from the repository
// assistant configuration service. The descriptor names the ordered targets a
// submission must be deposited to.
type Client interface {
	FetchChainDescriptor(ctx context.Context, configName string) (*domain.ChainDescriptor, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimSpace(os.Getenv("ASSISTANT_BASE_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("ASSISTANT_API_KEY")),
		Timeout: envutil.Dur("ASSISTANT_TIMEOUT", 30*time.Second),
	}
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing ASSISTANT_BASE_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "AssistantClient"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func (c *client) FetchChainDescriptor(ctx context.Context, configName string) (*domain.ChainDescriptor, error) {
	url := fmt.Sprintf("%s/conf/%s", c.baseURL, configName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("chain descriptor %s: %w", configName, apperr.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error("Assistant returned non-200", "config", configName, "status", resp.StatusCode)
		return nil, fmt.Errorf("assistant %s: status %d", configName, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var descriptor domain.ChainDescriptor
	if err := json.Unmarshal(body, &descriptor); err != nil {
		return nil, fmt.Errorf("chain descriptor decode: %w", err)
	}
	if len(descriptor.Targets) == 0 {
		return nil, fmt.Errorf("chain descriptor %s has no targets: %w", configName, apperr.ErrNotFound)
	}
	return &descriptor, nil
}
