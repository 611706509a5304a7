package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vbonduro/fotovendas/internal/domain"
	"github.com/vbonduro/fotovendas/internal/forms"
	"github.com/vbonduro/fotovendas/internal/service"
)

const (
	msgSaleLoadFailed   = "Erro ao carregar os dados da venda."
	msgSalesLoadFailed  = "Erro ao carregar as vendas."
	msgPhotoDelete      = "Erro ao excluir a foto."
	msgSaleDeleteFailed = "Erro ao excluir a venda."
	msgSaleCreateFailed = "Ocorreu um erro ao criar a venda."
	msgSaleUpdateFailed = "Ocorreu um erro ao atualizar a venda."
	msgNoImages         = "Por favor, adicione pelo menos uma foto"
	msgClientRequired   = "Cliente é obrigatório"

	newSaleTray = "new"
)

var saleFormFiles = []string{"partials/client_options.html", "partials/tray.html", "partials/form_errors.html"}

// salesFilter is the filter bar as submitted, kept for re-rendering.
type salesFilter struct {
	Status string
	From   string
	To     string
	Query  string
}

func parseSalesFilter(r *http.Request) (salesFilter, domain.SaleFilter) {
	q := r.URL.Query()
	sf := salesFilter{Status: q.Get("status"), From: q.Get("from"), To: q.Get("to"), Query: q.Get("q")}

	var f domain.SaleFilter
	switch sf.Status {
	case "completed":
		done := true
		f.Completed = &done
	case "pending":
		done := false
		f.Completed = &done
	default:
		sf.Status = "all"
	}
	if t, err := time.Parse(domain.DateLayout, sf.From); err == nil {
		f.From = &t
	}
	if t, err := time.Parse(domain.DateLayout, sf.To); err == nil {
		f.To = &t
	}
	f.Search = sf.Query
	return sf, f
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	sf, f := parseSalesFilter(r)

	sales, err := s.sales.ListSales(r.Context(), user.ID, f)
	if err != nil {
		s.logger.Error("list sales failed", "owner_id", user.ID, "error", err)
		if isHTMX(r) {
			s.showBanner(w, msgSalesLoadFailed)
			return
		}
	}

	if isHTMX(r) {
		if err := s.renderPartial(w, "partials/sale_list.html", sales); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}

	data := s.pageData(r, "sales")
	data["Sales"] = sales
	data["Filter"] = sf
	if err != nil {
		data["Error"] = msgSalesLoadFailed
	}
	s.renderApp(w, http.StatusOK, "sales.html", data, "partials/sale_list.html")
}

// handleNewSalePage opens a fresh form, so any images staged by an earlier
// visit are dropped.
func (s *Server) handleNewSalePage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	b := browserFrom(r.Context())
	b.ReleaseTray(newSaleTray)

	data := s.pageData(r, "sales")
	clients, err := s.clients.PickClients(r.Context(), user.ID, "")
	if err != nil {
		s.logger.Error("pick clients failed", "owner_id", user.ID, "error", err)
		data["Error"] = msgClientLoadFailed
	}
	data["Clients"] = clients
	data["Form"] = forms.Sale{SaleDate: time.Now().Format(domain.DateLayout)}
	data["Tray"] = trayView{Key: newSaleTray, Images: b.StagedImages(newSaleTray)}
	s.renderApp(w, http.StatusOK, "sale_new.html", data, saleFormFiles...)
}

// handlePickClients refreshes the client picker as the user types.
func (s *Server) handlePickClients(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	clients, err := s.clients.PickClients(r.Context(), user.ID, r.URL.Query().Get("q"))
	if err != nil {
		s.logger.Error("pick clients failed", "owner_id", user.ID, "error", err)
		s.showBanner(w, msgClientLoadFailed)
		return
	}
	if err := s.renderPartial(w, "partials/client_options.html", clients); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

// parseSaleForm accepts both multipart and urlencoded bodies.
func (s *Server) parseSaleForm(r *http.Request) (forms.Sale, error) {
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return forms.Sale{}, err
	}
	return forms.ParseSale(r.PostForm), nil
}

func (s *Server) renderFormErrors(w http.ResponseWriter, errs forms.Errors) {
	if err := s.renderFragment(w, http.StatusUnprocessableEntity, "form_errors", errs, "partials/form_errors.html"); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

// handleCreateSale validates the form and then streams the upload progress
// of the staged images as server-sent events, ending with a "done" event
// carrying the sale's URL or an "error" event.
func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	f, err := s.parseSaleForm(r)
	if err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	user := currentUser(r)
	b := browserFrom(r.Context())

	errs := f.Validate()
	images := b.StagedImages(newSaleTray)
	if len(images) == 0 {
		errs = append(errs, forms.FieldError{Field: "images", Message: msgNoImages})
	}
	if !errs.Ok() {
		s.renderFormErrors(w, errs)
		return
	}

	stream := newEventStream(w, r, s.logger)
	progress := func(p int) { stream.send("", map[string]int{"percent": p}) }

	// The upload runs to completion even when the browser navigates away.
	sale, err := s.sales.CreateSale(context.WithoutCancel(r.Context()), user.ID, f.Input(), images, progress)
	if err != nil {
		s.logger.Error("create sale failed", "owner_id", user.ID, "error", err)
		stream.send("error", map[string]string{"message": saleErrorMessage(err, msgSaleCreateFailed)})
		return
	}

	b.ReleaseTray(newSaleTray)
	stream.send("done", map[string]string{"redirect": "/sales/" + sale.ID})
}

func saleErrorMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, service.ErrNoImages):
		return msgNoImages
	case errors.Is(err, service.ErrClientNotFound):
		return msgClientRequired
	}
	return fallback
}

func saleTray(id string) string {
	return "sale-" + id
}

func (s *Server) handleSaleDetail(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := r.PathValue("id")
	b := browserFrom(r.Context())

	detail, err := s.sales.GetSale(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.redirect(w, r, "/sales")
			return
		}
		s.logger.Error("get sale failed", "owner_id", user.ID, "sale_id", id, "error", err)
		data := s.pageData(r, "sales")
		data["Error"] = msgSaleLoadFailed
		s.renderApp(w, http.StatusInternalServerError, "sale_detail.html", data, saleFormFiles...)
		return
	}

	b.ReleaseTray(saleTray(id))
	sale := detail.Sale
	data := s.pageData(r, "sales")
	data["Sale"] = sale
	data["Photos"] = detail.Photos
	data["Form"] = forms.Sale{
		ClientID:    sale.ClientID,
		SaleDate:    sale.SaleDate.Format(domain.DateLayout),
		Instagram:   sale.Instagram,
		Notes:       sale.Notes,
		IsCompleted: sale.IsCompleted,
	}
	data["Tray"] = trayView{Key: saleTray(id)}
	s.renderApp(w, http.StatusOK, "sale_detail.html", data, saleFormFiles...)
}

// handleUpdateSale saves the edited fields and streams the upload of any
// newly staged images the same way handleCreateSale does.
func (s *Server) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	f, err := s.parseSaleForm(r)
	if err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	user := currentUser(r)
	id := r.PathValue("id")
	b := browserFrom(r.Context())

	if errs := f.ValidateEdit(); !errs.Ok() {
		s.renderFormErrors(w, errs)
		return
	}

	key := saleTray(id)
	images := b.StagedImages(key)
	stream := newEventStream(w, r, s.logger)
	progress := func(p int) { stream.send("", map[string]int{"percent": p}) }

	if _, err := s.sales.UpdateSale(context.WithoutCancel(r.Context()), user.ID, id, f.Input(), images, progress); err != nil {
		s.logger.Error("update sale failed", "owner_id", user.ID, "sale_id", id, "error", err)
		stream.send("error", map[string]string{"message": saleErrorMessage(err, msgSaleUpdateFailed)})
		return
	}

	b.ReleaseTray(key)
	stream.send("done", map[string]string{"redirect": "/sales/" + id})
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := r.PathValue("id")

	if err := s.sales.DeleteSale(r.Context(), user.ID, id); err != nil {
		s.logger.Error("delete sale failed", "owner_id", user.ID, "sale_id", id, "error", err)
		s.showBanner(w, msgSaleDeleteFailed)
		return
	}
	browserFrom(r.Context()).ReleaseTray(saleTray(id))
	s.redirect(w, r, "/sales")
}

// handleDeletePhoto answers with an empty body so htmx drops the photo.
func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	saleID := r.PathValue("id")
	photoID := r.PathValue("photoID")

	if err := s.sales.DeletePhoto(r.Context(), user.ID, saleID, photoID); err != nil {
		s.logger.Error("delete photo failed", "owner_id", user.ID, "sale_id", saleID, "photo_id", photoID, "error", err)
		s.showBanner(w, msgPhotoDelete)
		return
	}
	w.WriteHeader(http.StatusOK)
}
