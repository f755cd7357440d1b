package services

import (
	"context"

	"gorm.io/gorm"

	"realtyportal/internal/database"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResult is the health endpoint payload
type HealthResult struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Version  string            `json:"version"`
	Checks   map[string]string `json:"checks"`
	Degraded []string          `json:"degraded,omitempty"`
}

// HealthService implements the health service
type HealthService struct {
	name     string
	version  string
	db       *gorm.DB
	redis    Pinger
	degraded []string
}

// NewHealthService creates a new health service. redis may be nil. degraded
// lists optional subsystems running in no-op mode.
func NewHealthService(name, version string, db *gorm.DB, redis Pinger, degraded []string) *HealthService {
	return &HealthService{name: name, version: version, db: db, redis: redis, degraded: degraded}
}

// Check implements the health check method
func (s *HealthService) Check(ctx context.Context) *HealthResult {
	res := &HealthResult{
		Status:   "healthy",
		Service:  s.name,
		Version:  s.version,
		Checks:   map[string]string{},
		Degraded: s.degraded,
	}

	res.Checks["database"] = "ok"
	if err := database.Ping(ctx, s.db); err != nil {
		res.Checks["database"] = "unavailable"
		res.Status = "unhealthy"
	}
	if s.redis != nil {
		res.Checks["redis"] = "ok"
		// Rate limiting fails open, so a lost Redis only degrades.
		if err := s.redis.Ping(ctx); err != nil {
			res.Checks["redis"] = "unavailable"
			if res.Status == "healthy" {
				res.Status = "degraded"
			}
		}
	}
	return res
}
