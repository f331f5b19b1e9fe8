package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/unigate/unigate/internal/monitor"
)

// RequestLogsHandler returns paginated request logs for the audit view.
func RequestLogsHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		search := r.URL.Query().Get("search")

		logs, total := mon.GetLogsWithPagination(page, pageSize, search)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"logs":  logs,
			"total": total,
		})
	}
}

// RequestStatsHandler returns aggregated dispatch statistics.
func RequestStatsHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mon.GetStats())
	}
}

// ClearRequestLogsHandler clears all request logs.
func ClearRequestLogsHandler(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mon.Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
