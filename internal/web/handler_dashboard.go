package web

import (
	"net/http"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	data := s.pageData(r, "dashboard")

	counts, err := s.dashboard.Counts(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("dashboard counts failed", "owner_id", user.ID, "error", err)
		data["Error"] = "Erro ao carregar o resumo."
	}
	data["Counts"] = counts
	s.renderApp(w, http.StatusOK, "dashboard.html", data)
}
