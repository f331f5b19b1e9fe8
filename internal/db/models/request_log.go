package models

// RequestLog is the append-only audit record of one dispatch attempt.
// Rows are created once per attempt and never mutated after completion.
type RequestLog struct {
	Ref          string `gorm:"primaryKey" json:"ref"` // UUID
	UserID       string `gorm:"index" json:"user_id"`
	Provider     string `gorm:"index" json:"provider"`
	ViaProvider  string `json:"via_provider,omitempty"`
	Method       string `json:"method"`
	Intent       string `gorm:"index" json:"intent"`
	Path         string `json:"path"`
	APIEndpoint  string `json:"api_endpoint"`
	RequestBody  string `gorm:"type:text" json:"request_body,omitempty"`
	ResponseBody string `gorm:"type:text" json:"response_body,omitempty"`
	Headers      string `json:"headers,omitempty"` // JSON object of outbound headers (auth redacted)
	Status       int    `json:"status"`
	IsError      bool   `json:"is_error"`
	Error        string `gorm:"type:text" json:"error,omitempty"`
	Trace        string `json:"trace,omitempty"`
	StartedAt    int64  `gorm:"index" json:"started_at"` // unix milliseconds
	CompletedAt  int64  `json:"completed_at"`
}

// RequestStats holds aggregated statistics for request logs
type RequestStats struct {
	TotalRequests int64 `json:"total_requests"`
	SuccessCount  int64 `json:"success_count"`
	ErrorCount    int64 `json:"error_count"`
}
