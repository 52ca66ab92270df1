package services

import (
	"context"
)

// Shutdown stops the cleaner, the metrics endpoint and closes all
// connections. It waits for background tasks until ctx expires.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.scheduler != nil {
		if err := m.scheduler.Stop(ctx); err != nil {
			m.logger.Warn("Error stopping cleaner", "error", err)
		}
	}

	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(ctx); err != nil {
			m.logger.Warn("Error shutting down metrics server", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for background tasks")
	}

	m.closeAll(ctx)
}

// closeAll releases connections and the store in reverse open order.
func (m *Manager) closeAll(ctx context.Context) {
	if m.mongoClient != nil {
		if err := m.mongoClient.Disconnect(ctx); err != nil {
			m.logger.Warn("Error disconnecting mongo", "error", err)
		}
		m.mongoClient = nil
	}
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			m.logger.Warn("Error closing resource", "error", err)
		}
	}
	m.closers = nil
}
