package services

import (
	"context"
	"errors"
	"net/http"
)

// Start launches the metrics endpoint and the cleaner schedule.
func (m *Manager) Start(bgCtx context.Context) error {
	if m.metricsServer != nil {
		srv := m.metricsServer
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.logger.Info("Metrics listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	if m.scheduler != nil {
		if err := m.scheduler.Start(bgCtx); err != nil {
			return err
		}
	}
	return nil
}
