package health

import (
	"context"

	"github.com/quarryhq/quarry/internal/version"
)

// Pinger checks the storage backend's liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the service health snapshot exposed at /health.
type Status struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Reranker string `json:"reranker"`
	Version  string `json:"version"`
}

// Service aggregates component health.
type Service struct {
	db             Pinger
	rerankerActive bool
}

// New creates the health service. rerankerActive records whether a
// cross-encoder loaded at startup.
func New(db Pinger, rerankerActive bool) *Service {
	return &Service{db: db, rerankerActive: rerankerActive}
}

// Check probes the database and reports component states. The service is
// "degraded" rather than down when only the reranker is missing, since
// search still works without it.
func (s *Service) Check(ctx context.Context) Status {
	st := Status{
		Status:   "ok",
		Database: "ok",
		Reranker: "ok",
		Version:  version.Version,
	}
	if err := s.db.Ping(ctx); err != nil {
		st.Status = "unavailable"
		st.Database = "unreachable"
	}
	if !s.rerankerActive {
		st.Reranker = "disabled"
		if st.Status == "ok" {
			st.Status = "degraded"
		}
	}
	return st
}
