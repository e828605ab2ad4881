package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

// ReportBus announces changed scopes to every instance sharing the channel so
// they can drop cached snapshots.
type ReportBus interface {
	Publish(ctx context.Context, scope coverage.Scope) error
	StartForwarder(ctx context.Context, onChange func(scope coverage.Scope, origin string)) error
	Origin() string
	Close() error
}

// HealthReporter records whether the forwarder is still receiving.
type HealthReporter interface {
	MarkUnhealthy(name, why string)
}

type Config struct {
	Addr    string
	Channel string
	// Origin identifies this instance; its own messages are still delivered.
	Origin string
	// Health, when set, is marked unhealthy if the subscription ends early.
	Health HealthReporter
}

type scopeChanged struct {
	Organisation string `msgpack:"o"`
	Commit       string `msgpack:"c"`
	File         string `msgpack:"f"`
	Origin       string `msgpack:"src"`
}

type reportBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	origin  string
	health  HealthReporter
}

func NewReportBus(log *logger.Logger, cfg Config) (ReportBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = "coverage.reports"
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

	return newReportBus(log, rdb, ch, cfg.Origin, cfg.Health), nil
}

func newReportBus(log *logger.Logger, rdb *goredis.Client, channel, origin string, health HealthReporter) *reportBus {
	return &reportBus{
		log:     log.With("service", "RedisReportBus", "channel", channel),
		rdb:     rdb,
		channel: channel,
		origin:  origin,
		health:  health,
	}
}

func (b *reportBus) Origin() string { return b.origin }

func (b *reportBus) Publish(ctx context.Context, scope coverage.Scope) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis report bus not initialized")
	}
	raw, err := msgpack.Marshal(&scopeChanged{
		Organisation: scope.Organisation,
		Commit:       scope.Commit,
		File:         scope.File,
		Origin:       b.origin,
	})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *reportBus) StartForwarder(ctx context.Context, onChange func(scope coverage.Scope, origin string)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis report bus not initialized")
	}
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		b.forward(ctx, sub.Channel(), onChange)
	}()
	return nil
}

// forward delivers messages until ctx is done or ch closes. A closed channel
// means this instance stops seeing other instances' writes.
func (b *reportBus) forward(ctx context.Context, ch <-chan *goredis.Message, onChange func(scope coverage.Scope, origin string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				b.log.Error("report bus subscription closed; cached reports may go stale")
				if b.health != nil {
					b.health.MarkUnhealthy("redis", "subscription closed")
				}
				return
			}
			if m == nil {
				continue
			}
			var msg scopeChanged
			if err := msgpack.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.log.Warn("bad report bus payload", "error", err)
				continue
			}
			onChange(coverage.Scope{
				Organisation: msg.Organisation,
				File:         msg.File,
				Commit:       msg.Commit,
			}, msg.Origin)
		}
	}
}

func (b *reportBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
