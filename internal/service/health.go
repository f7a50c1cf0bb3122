package service

import (
	"time"

	"github.com/embedworks/embedgate/pkg/types"
)

// Health derives the operational status from the lifecycle state:
// READY is healthy, LOADING is degraded (starting up), UNINITIALIZED and
// ERROR are unhealthy. The container probe restarts the process when
// unhealthy persists beyond its startup grace period; the grace period
// itself is the probe's concern, not the service's.
func (s *Service) Health() types.HealthResponse {
	st := s.State()

	status := types.StatusUnhealthy
	switch st {
	case StateReady:
		status = types.StatusHealthy
	case StateLoading:
		status = types.StatusDegraded
	}

	resp := types.HealthResponse{
		Status:      status,
		Version:     s.cfg.Get().App.Version,
		ModelLoaded: false,
		Uptime:      time.Since(s.startedAt).Seconds(),
		State:       st.String(),
	}

	if h := s.loader.Active(); h != nil {
		resp.ModelLoaded = true
		resp.ModelName = h.Name()
		resp.Dimensions = h.Dimensions()
	}
	return resp
}
