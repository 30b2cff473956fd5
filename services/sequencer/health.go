package sequencer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

var errProbeFailed = errors.New("health check failed")

// waitHealthy polls the service health check until it passes, the retry
// budget runs out, or ctx is cancelled. It returns the number of executions.
func (s *Sequencer) waitHealthy(ctx context.Context, svc models.ServiceDescriptor, containerID string) (int, error) {
	hc := svc.HealthCheck.WithDefaults(s.defaults)
	if hc.Retries < 1 {
		hc.Retries = 1
	}
	if hc.Interval <= 0 {
		hc.Interval = time.Second
	}
	if hc.Timeout <= 0 {
		hc.Timeout = hc.Interval
	}
	log := s.logger.With().Str("service", svc.Name).Logger()

	if hc.StartPeriod > 0 {
		t := time.NewTimer(hc.StartPeriod)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}

	attempts := 0
	b := retry.WithMaxRetries(uint64(hc.Retries-1), retry.NewConstant(hc.Interval))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++

		probeCtx, cancel := context.WithTimeout(ctx, hc.Timeout)
		defer cancel()

		res, err := s.platform.CheckHealth(probeCtx, svc, containerID)
		if err != nil {
			// The parent context ending is not a failed probe.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.metrics.HealthProbe(svc.Name, false)
			log.Debug().Err(err).Int("attempt", attempts).Msg("health check could not run")
			return retry.RetryableError(fmt.Errorf("%w: %v", errProbeFailed, err))
		}

		s.metrics.HealthProbe(svc.Name, res.Healthy())
		if !res.Healthy() {
			log.Debug().
				Int("attempt", attempts).
				Int("exit_code", res.ExitCode).
				Str("output", strings.TrimSpace(res.Output)).
				Msg("health check not passing yet")
			return retry.RetryableError(fmt.Errorf("%w: %s exited with %d", errProbeFailed, strings.Join(hc.Test, " "), res.ExitCode))
		}

		return nil
	})

	return attempts, err
}
