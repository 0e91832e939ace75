package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/datastations/packaging-service/internal/platform/logger"
)

// ProgressEvent is one deposit progress update published to interested
// frontends while a chain runs.
type ProgressEvent struct {
	DatasetID     string `json:"dataset-id"`
	OwnerID       string `json:"owner-id,omitempty"`
	TargetName    string `json:"target-name,omitempty"`
	DepositStatus string `json:"deposit-status"`
	Timestamp     string `json:"timestamp"`
}

// Publisher pushes progress events onto a redis channel. A nil Publisher is
// safe to call; the deposit flow never depends on notification delivery.
type Publisher interface {
	Publish(ctx context.Context, event ProgressEvent) error
	Close() error
}

type publisher struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewFromEnv returns (nil, nil) when REDIS_ADDR is unset: progress
// notification is an optional facility.
func NewFromEnv(log *logger.Logger) (Publisher, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	return New(log, addr, strings.TrimSpace(os.Getenv("REDIS_CHANNEL")))
}

func New(log *logger.Logger, addr, channel string) (Publisher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if channel == "" {
		channel = "deposit-progress"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &publisher{
		log:     log.With("service", "ProgressPublisher"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (p *publisher) Publish(ctx context.Context, event ProgressEvent) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		p.log.Warn("Progress publish failed", "dataset", event.DatasetID, "error", err)
		return err
	}
	return nil
}

func (p *publisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
