package web

import "net/http"

func (s *Server) handleToggleMenu(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r.Context())
	open := b.Menu.Toggle()
	s.renderMenu(w, r, open)
}

func (s *Server) handleCloseMenu(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r.Context())
	b.Menu.Close()
	s.renderMenu(w, r, false)
}

func (s *Server) renderMenu(w http.ResponseWriter, r *http.Request, open bool) {
	v := menuView{Open: open, Nav: r.FormValue("nav")}
	if err := s.renderPartial(w, "partials/menu.html", v); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}
