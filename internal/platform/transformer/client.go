package transformer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/datastations/packaging-service/internal/platform/envutil"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

// Client transforms a metadata document by POSTing it to an external
// transformation service and returning the service's result verbatim.
type Client interface {
	Transform(ctx context.Context, transformURL, token, input string) (string, error)
}

type Config struct {
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Timeout: envutil.Dur("TRANSFORMER_TIMEOUT", 60*time.Second),
	}
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &client{
		log:        log.With("client", "TransformerClient"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

type client struct {
	log        *logger.Logger
	httpClient *http.Client
}

type transformResponse struct {
	Result json.RawMessage `json:"result"`
}

func (c *client) Transform(ctx context.Context, transformURL, token, input string) (string, error) {
	if strings.TrimSpace(transformURL) == "" {
		return "", fmt.Errorf("transform url required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, transformURL, bytes.NewBufferString(input))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error("Transformer returned non-200", "url", transformURL, "status", resp.StatusCode)
		return "", fmt.Errorf("transform %s: status %d", transformURL, resp.StatusCode)
	}

	var parsed transformResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("transform response decode: %w", err)
	}
	if len(parsed.Result) == 0 {
		return "", fmt.Errorf("transform %s: empty result", transformURL)
	}

	// Result may be a JSON document or a quoted string holding one (e.g. XML).
	var asString string
	if err := json.Unmarshal(parsed.Result, &asString); err == nil {
		return asString, nil
	}
	return string(parsed.Result), nil
}
