package server

import (
	"net/http"

	"swanid/internal/api"
)

func (s *Server) handleAdminRepair(w http.ResponseWriter, r *http.Request) {
	var req api.RepairRequest
	if !s.decodeOptionalJSONReq(w, r, &req) {
		return
	}

	s.withLimiter(w, r, s.repairLimiter, "repair", func() {
		report, err := s.images.Repair(r.Context(), req.Apply)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, toRepairResponse(report))
	})
}
