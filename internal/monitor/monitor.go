// Package monitor records every dispatch attempt in the append-only request
// log. Writes are asynchronous and best-effort: a log failure never surfaces
// to the caller of a dispatch.
package monitor

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/unigate/unigate/internal/db/models"
	"gorm.io/gorm"
)

const (
	// MaxRequestBodySize limits request body storage to 1MB
	MaxRequestBodySize = 1024 * 1024
	// MaxResponseBodySize limits response body storage to 512KB
	MaxResponseBodySize = 512 * 1024
	// MaxMemoryLogs limits the in-memory recent-log cache
	MaxMemoryLogs = 100
)

// Monitor manages request-log persistence and statistics.
type Monitor struct {
	db      *gorm.DB
	enabled atomic.Bool

	// In-memory cache for recent logs (thread-safe)
	recentLogs []models.RequestLog
	logsMu     sync.RWMutex

	// In-memory stats (updated atomically)
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
}

// NewMonitor creates a request-log monitor. Logging defaults to enabled:
// the request log is the gateway's audit trail.
func NewMonitor(db *gorm.DB) *Monitor {
	m := &Monitor{
		db:         db,
		recentLogs: make([]models.RequestLog, 0, MaxMemoryLogs),
	}

	if err := db.AutoMigrate(&models.RequestLog{}); err != nil {
		log.Printf("[Monitor] Failed to migrate RequestLog table: %v", err)
	}

	m.loadStatsFromDB()
	m.enabled.Store(true)

	return m
}

// SetEnabled enables or disables request logging
func (m *Monitor) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
	log.Printf("[Monitor] Logging %s", map[bool]string{true: "enabled", false: "disabled"}[enabled])
}

// IsEnabled returns whether logging is enabled
func (m *Monitor) IsEnabled() bool {
	return m.enabled.Load()
}

// Record appends one dispatch attempt (async, non-blocking).
func (m *Monitor) Record(entry models.RequestLog) {
	if !m.IsEnabled() {
		return
	}

	if entry.Ref == "" {
		entry.Ref = uuid.New().String()
	}
	if entry.StartedAt == 0 {
		entry.StartedAt = time.Now().UnixMilli()
	}
	if entry.CompletedAt == 0 {
		entry.CompletedAt = time.Now().UnixMilli()
	}

	// Truncate bodies if too large
	if len(entry.RequestBody) > MaxRequestBodySize {
		entry.RequestBody = entry.RequestBody[:MaxRequestBodySize] + "...[truncated]"
	}
	if len(entry.ResponseBody) > MaxResponseBodySize {
		entry.ResponseBody = entry.ResponseBody[:MaxResponseBodySize] + "...[truncated]"
	}

	// Update in-memory stats
	m.totalRequests.Add(1)
	if !entry.IsError && entry.Status >= 200 && entry.Status < 400 {
		m.successCount.Add(1)
	} else {
		m.errorCount.Add(1)
	}

	// Add to in-memory cache
	m.logsMu.Lock()
	m.recentLogs = append([]models.RequestLog{entry}, m.recentLogs...)
	if len(m.recentLogs) > MaxMemoryLogs {
		m.recentLogs = m.recentLogs[:MaxMemoryLogs]
	}
	m.logsMu.Unlock()

	// Async save to DB; failures are swallowed and logged operationally.
	go func(e models.RequestLog) {
		if err := m.db.Create(&e).Error; err != nil {
			log.Printf("[Monitor] Failed to save request log %s: %v", e.Ref, err)
		}
	}(entry)
}

// GetLogs returns recent request logs with optional time filter
func (m *Monitor) GetLogs(limit int, sinceMinutes int) []models.RequestLog {
	if limit <= 0 {
		limit = 100
	}

	var logs []models.RequestLog
	query := m.db.Order("started_at DESC").Limit(limit)

	if sinceMinutes > 0 {
		sinceTime := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute).UnixMilli()
		query = query.Where("started_at >= ?", sinceTime)
	}

	if err := query.Find(&logs).Error; err != nil {
		log.Printf("[Monitor] Failed to get logs from DB: %v", err)
		// Fallback to memory
		m.logsMu.RLock()
		defer m.logsMu.RUnlock()
		if limit > len(m.recentLogs) {
			limit = len(m.recentLogs)
		}
		return m.recentLogs[:limit]
	}
	return logs
}

// GetLogsWithPagination returns logs with pagination support for history view
func (m *Monitor) GetLogsWithPagination(page, pageSize int, search string) ([]models.RequestLog, int64) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	var logs []models.RequestLog
	var total int64

	query := m.db.Model(&models.RequestLog{})

	if search != "" {
		searchPattern := "%" + search + "%"
		query = query.Where("provider LIKE ? OR intent LIKE ? OR user_id LIKE ? OR error LIKE ?",
			searchPattern, searchPattern, searchPattern, searchPattern)
	}

	query.Count(&total)

	offset := (page - 1) * pageSize
	if err := query.Order("started_at DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		log.Printf("[Monitor] Failed to get logs with pagination: %v", err)
		return nil, 0
	}

	return logs, total
}

// GetStats returns aggregated request statistics
func (m *Monitor) GetStats() models.RequestStats {
	return models.RequestStats{
		TotalRequests: m.totalRequests.Load(),
		SuccessCount:  m.successCount.Load(),
		ErrorCount:    m.errorCount.Load(),
	}
}

// Clear clears all logs from memory and database
func (m *Monitor) Clear() error {
	m.logsMu.Lock()
	m.recentLogs = m.recentLogs[:0]
	m.logsMu.Unlock()

	m.totalRequests.Store(0)
	m.successCount.Store(0)
	m.errorCount.Store(0)

	if err := m.db.Exec("DELETE FROM request_logs").Error; err != nil {
		log.Printf("[Monitor] Failed to clear logs: %v", err)
		return err
	}

	log.Printf("[Monitor] All logs cleared")
	return nil
}

// loadStatsFromDB loads initial statistics from database
func (m *Monitor) loadStatsFromDB() {
	var total, success, errors int64

	m.db.Model(&models.RequestLog{}).Count(&total)
	m.db.Model(&models.RequestLog{}).Where("is_error = ? AND status >= 200 AND status < 400", false).Count(&success)
	m.db.Model(&models.RequestLog{}).Where("is_error = ? OR status < 200 OR status >= 400", true).Count(&errors)

	m.totalRequests.Store(total)
	m.successCount.Store(success)
	m.errorCount.Store(errors)

	log.Printf("[Monitor] Loaded stats: total=%d, success=%d, errors=%d", total, success, errors)
}
