package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vbonduro/fotovendas/internal/guard"
	"github.com/vbonduro/fotovendas/internal/identity"
	"github.com/vbonduro/fotovendas/internal/metrics"
	"github.com/vbonduro/fotovendas/internal/photostore/local"
	"github.com/vbonduro/fotovendas/internal/service"
	"github.com/vbonduro/fotovendas/internal/session"
)

// Deps are the collaborators a Server is built from. Resets and LocalPhotos
// are optional.
type Deps struct {
	Registry  *session.Registry
	Cookies   CookieStore
	Clients   *service.ClientService
	Sales     *service.SaleService
	Dashboard *service.DashboardService
	// Resets completes password resets in-process when the identity
	// provider supports it.
	Resets identity.ResetCompleter
	// LocalPhotos serves signed photo URLs when photos live on local disk.
	LocalPhotos    *local.LocalPhotoStore
	Templates      embed.FS
	BootstrapWait  time.Duration
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Server struct {
	registry       *session.Registry
	cookies        CookieStore
	clients        *service.ClientService
	sales          *service.SaleService
	dashboard      *service.DashboardService
	resets         identity.ResetCompleter
	localPhotos    *local.LocalPhotoStore
	templates      embed.FS
	bootstrapWait  time.Duration
	maxUploadBytes int64
	mux            *http.ServeMux
	tmplFuncs      template.FuncMap
	logger         *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		registry:       d.Registry,
		cookies:        d.Cookies,
		clients:        d.Clients,
		sales:          d.Sales,
		dashboard:      d.Dashboard,
		resets:         d.Resets,
		localPhotos:    d.LocalPhotos,
		templates:      d.Templates,
		bootstrapWait:  d.BootstrapWait,
		maxUploadBytes: d.MaxUploadBytes,
		mux:            http.NewServeMux(),
		logger:         d.Logger,
		tmplFuncs: template.FuncMap{
			"formatDate": formatDate,
			"isoDate":    isoDate,
			"inc":        func(i int) int { return i + 1 },
			"sub":        func(a, b int) int { return a - b },
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Authentication screens.
	s.handle("GET /login", guard.Public, s.handleLoginPage)
	s.handle("POST /login", guard.Public, s.handleLogin)
	s.handle("GET /register", guard.Public, s.handleRegisterPage)
	s.handle("POST /register", guard.Public, s.handleRegister)
	s.handle("GET /forgot-password", guard.Public, s.handleForgotPasswordPage)
	s.handle("POST /forgot-password", guard.Public, s.handleForgotPassword)
	if s.resets != nil {
		s.handle("GET /reset-password", guard.Public, s.handleResetPasswordPage)
		s.handle("POST /reset-password", guard.Public, s.handleResetPassword)
	}
	s.handle("POST /logout", guard.Protected, s.handleLogout)

	s.handle("GET /{$}", guard.Protected, s.handleDashboard)

	s.handle("GET /clients", guard.Protected, s.handleListClients)
	s.handle("POST /clients", guard.Protected, s.handleCreateClient)
	s.handle("GET /clients/new", guard.Protected, s.handleNewClientPage)
	s.handle("GET /clients/{id}/edit", guard.Protected, s.handleEditClientRow)
	s.handle("GET /clients/{id}/row", guard.Protected, s.handleClientRow)
	s.handle("PUT /clients/{id}", guard.Protected, s.handleUpdateClient)
	s.handle("DELETE /clients/{id}", guard.Protected, s.handleDeleteClient)

	s.handle("GET /sales", guard.Protected, s.handleListSales)
	s.handle("POST /sales", guard.Protected, s.handleCreateSale)
	s.handle("GET /sales/new", guard.Protected, s.handleNewSalePage)
	s.handle("GET /sales/new/clients", guard.Protected, s.handlePickClients)
	s.handle("GET /sales/{id}", guard.Protected, s.handleSaleDetail)
	s.handle("POST /sales/{id}", guard.Protected, s.handleUpdateSale)
	s.handle("DELETE /sales/{id}", guard.Protected, s.handleDeleteSale)
	s.handle("DELETE /sales/{id}/photos/{photoID}", guard.Protected, s.handleDeletePhoto)

	s.handle("POST /uploads/{tray}", guard.Protected, s.handleAddToTray)
	s.handle("GET /uploads/{tray}/{id}", guard.Protected, s.handleTrayPreview)
	s.handle("DELETE /uploads/{tray}/{id}", guard.Protected, s.handleRemoveFromTray)

	s.handle("POST /menu/toggle", guard.Protected, s.handleToggleMenu)
	s.handle("POST /menu/close", guard.Protected, s.handleCloseMenu)

	if s.localPhotos != nil {
		s.mux.HandleFunc("GET /storage/{key...}", s.handleGetStoredPhoto)
	}
	s.mux.HandleFunc("GET /heartbeat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	// Anything else goes back to the dashboard.
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		d := guard.Decide(session.State{}, guard.Unknown)
		s.redirect(w, r, d.Location)
	})
}

// handle registers h behind the browser session and the route guard.
func (s *Server) handle(pattern string, access guard.Access, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.withBrowser(s.guarded(access, h)))
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; "+
				"font-src https://fonts.gstatic.com; "+
				"img-src 'self' data: blob: https:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(metrics.Wrap(s.mux))).ServeHTTP(w, r)
}

// HTTPServer returns an http.Server for addr with the timeouts used in
// production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, status int, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return tmpl.ExecuteTemplate(w, "base", data)
}

// renderPartial parses and executes a single named partial template.
// The file must contain exactly one {{define "name"}}...{{end}} block.
func (s *Server) renderPartial(w http.ResponseWriter, file string, data any) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, file)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// ParseFS registers both the file-basename template and any {{define}} blocks.
	// Find the {{define}} template: it is the one whose name is neither "" nor
	// the file basename.
	basename := file
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		basename = file[idx+1:]
	}
	for _, t := range tmpl.Templates() {
		if n := t.Name(); n != "" && n != basename {
			return t.Execute(w, data)
		}
	}
	// Fallback: execute the file-basename template (no {{define}} blocks found).
	return tmpl.ExecuteTemplate(w, basename, data)
}

// renderFragment executes the named template from a set of partial files,
// for partials that include other partials.
func (s *Server) renderFragment(w http.ResponseWriter, status int, name string, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return tmpl.ExecuteTemplate(w, name, data)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends the browser to location, replacing the current history
// entry. htmx requests get an HX-Redirect header instead of a 303.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, location string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", location)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// showBanner swaps msg into the page's banner instead of the request's
// usual target.
func (s *Server) showBanner(w http.ResponseWriter, msg string) {
	w.Header().Set("HX-Retarget", "#banner")
	w.Header().Set("HX-Reswap", "innerHTML")
	if err := s.renderPartial(w, "partials/banner.html", msg); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// menuView is the data of the mobile menu partial.
type menuView struct {
	Open bool
	Nav  string
}

// pageData starts the data of a page inside the authenticated layout. A
// full page load always starts with the mobile menu closed.
func (s *Server) pageData(r *http.Request, nav string) map[string]any {
	b := browserFrom(r.Context())
	b.Menu.Close()
	return map[string]any{
		"User": currentUser(r),
		"Nav":  nav,
		"Menu": menuView{Nav: nav},
	}
}

// renderApp renders page inside the authenticated layout. partials lists
// the partial templates the page includes.
func (s *Server) renderApp(w http.ResponseWriter, status int, page string, data any, partials ...string) {
	files := append([]string{"base.html", "partials/menu.html", "partials/banner.html", "pages/" + page}, partials...)
	if err := s.renderPage(w, status, data, files...); err != nil {
		s.logger.Error("render page failed", "page", page, "error", err)
	}
}
