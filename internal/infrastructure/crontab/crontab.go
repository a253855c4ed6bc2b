package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"

	"jan-server/services/envchat-api/internal/domain/conversation"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/infrastructure/metrics"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// ProbeTimeout bounds one history probe.
const ProbeTimeout = 30 * time.Second

// HistoryProber reports the state of the chat history store.
type HistoryProber interface {
	Configured() bool
	Ensure(ctx context.Context) conversation.HealthReport
}

type Crontab struct {
	ctab     *crontab.Crontab
	history  HistoryProber
	schedule string
}

func NewCrontab(history HistoryProber, schedule string) *Crontab {
	return &Crontab{
		ctab:     crontab.New(),
		history:  history,
		schedule: schedule,
	}
}

// Run schedules the periodic jobs and blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	log := logger.Component("crontab")
	defer c.ctab.Shutdown()

	if c.history == nil || !c.history.Configured() || c.schedule == "" {
		log.Info().Msg("chat history probe disabled")
		<-ctx.Done()
		return nil
	}

	// execute once on server start
	c.probeHistory(ctx)

	if err := c.ctab.AddJob(c.schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), ProbeTimeout)
		defer cancel()
		c.probeHistory(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add history probe job")
	}
	log.Info().Str("schedule", c.schedule).Msg("chat history probe scheduled")

	<-ctx.Done()
	return nil
}

func (c *Crontab) probeHistory(ctx context.Context) {
	log := logger.Component("crontab")
	report := c.history.Ensure(ctx)
	metrics.SetHistoryHealth(report.OK)
	if !report.OK {
		log.Warn().Str("kind", string(report.Kind)).Str("diagnostic", report.Diagnostic).Msg("chat history probe failed")
	}
}
