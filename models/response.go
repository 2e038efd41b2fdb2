package models

// ErrorResponse wraps an ErrorDetail for non-2xx API responses.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// RecordResponse is the response for GET /api/v1/records/:abn.
type RecordResponse struct {
	Record   CharityRecord `json:"record"`
	CachedAt int64         `json:"cached_at"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string     `json:"status"` // "healthy" or "degraded"
	Uptime     string     `json:"uptime"`
	WorkerPool WorkerPool `json:"worker_pool"`
	Version    string     `json:"version"`
}

// WorkerPool reports how many runs and workers are live.
type WorkerPool struct {
	ActiveRuns    int `json:"active_runs"`
	ActiveWorkers int `json:"active_workers"`
	MaxWorkers    int `json:"max_workers"`
}
