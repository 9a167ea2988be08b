package cron

import (
	"fmt"
	"time"

	"github.com/innotech-solutions/innotech-api/model"
)

// staleSessionAge is how long an active session may sit without a new turn
// before housekeeping closes it.
const staleSessionAge = 30 * 24 * time.Hour

// CleanupExpiredTokens removes blacklist entries whose tokens have expired.
// Expired tokens fail validation anyway, so the rows are pure bloat.
func (m *CronManager) CleanupExpiredTokens() {
	jobName := "cleanup_expired_tokens"

	result := m.db.Unscoped().
		Where("expires_at < ?", time.Now()).
		Delete(&model.JWTTokenBlacklist{})
	if result.Error != nil {
		m.logJobError(jobName, result.Error)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("removed %d expired blacklist entries", result.RowsAffected))
}

// CompleteStaleSessions marks long-idle active sessions as completed
func (m *CronManager) CompleteStaleSessions() {
	jobName := "complete_stale_sessions"

	cutoff := time.Now().Add(-staleSessionAge)
	result := m.db.Model(&model.AgentSession{}).
		Where("status = ? AND updated_at < ?", model.SessionStatusActive, cutoff).
		Updates(map[string]interface{}{
			"status":     model.SessionStatusCompleted,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		m.logJobError(jobName, result.Error)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("completed %d stale sessions", result.RowsAffected))
}
