package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/coverage-backend/internal/clients/redis"
	"github.com/yungbote/coverage-backend/internal/observability"
	"github.com/yungbote/coverage-backend/internal/platform/gcp"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

type Clients struct {
	ReportBus redis.ReportBus
	Archive   gcp.Archive
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, origin string, health *observability.Health) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	var bus redis.ReportBus
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := redis.NewReportBus(log, redis.Config{
			Addr:    cfg.Redis.Addr,
			Channel: cfg.Redis.Channel,
			Origin:  origin,
			Health:  health,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init redis report bus: %w", err)
		}
		bus = b
	}

	// Gcs
	var archive gcp.Archive
	if strings.TrimSpace(cfg.Archive.Bucket) != "" {
		a, err := gcp.NewArchive(ctx, log, gcp.ArchiveConfig{
			Bucket:          cfg.Archive.Bucket,
			EmulatorHost:    cfg.Archive.EmulatorHost,
			CredentialsFile: cfg.Archive.CredentialsFile,
		})
		if err != nil {
			if bus != nil {
				_ = bus.Close()
			}
			return Clients{}, fmt.Errorf("init submission archive: %w", err)
		}
		archive = a
	}

	return Clients{ReportBus: bus, Archive: archive}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.ReportBus != nil {
		_ = c.ReportBus.Close()
	}
	if c.Archive != nil {
		_ = c.Archive.Close()
	}
}
