package web

import (
	"errors"
	"net/http"

	"github.com/vbonduro/fotovendas/internal/domain"
	"github.com/vbonduro/fotovendas/internal/forms"
)

const (
	msgClientCreateFailed = "Erro ao criar cliente. Tente novamente."
	msgClientLoadFailed   = "Erro ao carregar clientes."
	msgClientUpdateFailed = "Erro ao atualizar cliente"
	msgClientDeleteFailed = "Erro ao excluir cliente. Tente novamente."
)

var clientListFiles = []string{"partials/client_list.html", "partials/client_row.html"}

// clientEditView is the data of an inline edit row.
type clientEditView struct {
	ID     string
	Form   forms.Client
	Errors forms.Errors
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	q := r.URL.Query().Get("q")

	clients, err := s.clients.ListClients(r.Context(), user.ID, q)
	if err != nil {
		s.logger.Error("list clients failed", "owner_id", user.ID, "error", err)
		if isHTMX(r) {
			s.showBanner(w, msgClientLoadFailed)
			return
		}
	}

	if isHTMX(r) {
		if err := s.renderFragment(w, http.StatusOK, "client_list", clients, clientListFiles...); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}

	data := s.pageData(r, "clients")
	data["Clients"] = clients
	data["Query"] = q
	if err != nil {
		data["Error"] = msgClientLoadFailed
	}
	s.renderApp(w, http.StatusOK, "clients.html", data, clientListFiles...)
}

func (s *Server) handleNewClientPage(w http.ResponseWriter, r *http.Request) {
	data := s.pageData(r, "clients")
	data["Form"] = forms.Client{}
	s.renderApp(w, http.StatusOK, "client_new.html", data)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	user := currentUser(r)
	f := forms.ParseClient(r.PostForm)

	data := s.pageData(r, "clients")
	data["Form"] = f
	if errs := f.Validate(); !errs.Ok() {
		data["Errors"] = errs
		s.renderApp(w, http.StatusUnprocessableEntity, "client_new.html", data)
		return
	}

	if _, err := s.clients.CreateClient(r.Context(), user.ID, f.Input()); err != nil {
		s.logger.Error("create client failed", "owner_id", user.ID, "error", err)
		data["Error"] = msgClientCreateFailed
		s.renderApp(w, http.StatusInternalServerError, "client_new.html", data)
		return
	}
	s.redirect(w, r, "/clients")
}

func (s *Server) handleEditClientRow(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := r.PathValue("id")

	c, err := s.clients.GetClient(r.Context(), user.ID, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("get client failed", "owner_id", user.ID, "client_id", id, "error", err)
		}
		s.showBanner(w, msgClientLoadFailed)
		return
	}

	v := clientEditView{ID: c.ID, Form: forms.Client{Name: c.Name, Email: c.Email, Phone: c.Phone}}
	if err := s.renderPartial(w, "partials/client_edit_row.html", v); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

// handleClientRow renders the read-only row, used to cancel an edit.
func (s *Server) handleClientRow(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := r.PathValue("id")

	c, err := s.clients.GetClient(r.Context(), user.ID, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("get client failed", "owner_id", user.ID, "client_id", id, "error", err)
		}
		s.showBanner(w, msgClientLoadFailed)
		return
	}
	if err := s.renderPartial(w, "partials/client_row.html", c); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

// handleUpdateClient saves an inline edit and swaps back only that row.
// Validation errors keep the row in edit mode.
func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	user := currentUser(r)
	id := r.PathValue("id")
	f := forms.ParseClient(r.PostForm)

	if errs := f.Validate(); !errs.Ok() {
		v := clientEditView{ID: id, Form: f, Errors: errs}
		if err := s.renderPartial(w, "partials/client_edit_row.html", v); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}

	c, err := s.clients.UpdateClient(r.Context(), user.ID, id, f.Input())
	if err != nil {
		s.logger.Error("update client failed", "owner_id", user.ID, "client_id", id, "error", err)
		s.showBanner(w, msgClientUpdateFailed)
		return
	}
	if err := s.renderPartial(w, "partials/client_row.html", c); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

// handleDeleteClient answers with an empty body so htmx drops the row.
func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := r.PathValue("id")

	if err := s.clients.DeleteClient(r.Context(), user.ID, id); err != nil {
		s.logger.Error("delete client failed", "owner_id", user.ID, "client_id", id, "error", err)
		s.showBanner(w, msgClientDeleteFailed)
		return
	}
	w.WriteHeader(http.StatusOK)
}
