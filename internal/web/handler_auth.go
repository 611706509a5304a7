package web

import (
	"errors"
	"net/http"

	"github.com/vbonduro/fotovendas/internal/forms"
	"github.com/vbonduro/fotovendas/internal/identity"
	"github.com/vbonduro/fotovendas/internal/platform"
)

const (
	msgInvalidLogin  = "Usuário ou senha inválidos. Tente novamente."
	msgLoginFailed   = "Ocorreu um erro ao fazer login. Tente novamente."
	msgSignedUp      = "Conta criada com sucesso! Você já pode fazer login."
	msgSignUpFailed  = "Ocorreu um erro ao criar a conta. Tente novamente."
	msgResetSent     = "Link para redefinição de senha enviado. Verifique seu email."
	msgResetFailed   = "Ocorreu um erro ao enviar o email. Tente novamente."
	msgPasswordReset = "Senha redefinida com sucesso! Você já pode fazer login."
)

func (s *Server) renderAuth(w http.ResponseWriter, status int, page string, data map[string]any) {
	if err := s.renderPage(w, status, data, "auth.html", "pages/"+page); err != nil {
		s.logger.Error("render page failed", "page", page, "error", err)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderAuth(w, http.StatusOK, "login.html", map[string]any{"Form": forms.Login{}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	f := forms.ParseLogin(r.PostForm)
	data := map[string]any{"Form": f}
	if errs := f.Validate(); !errs.Ok() {
		data["Errors"] = errs
		s.renderAuth(w, http.StatusUnprocessableEntity, "login.html", data)
		return
	}

	b := browserFrom(r.Context())
	if err := b.Session.SignIn(r.Context(), f.Email, f.Password); err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			data["Error"] = msgInvalidLogin
		} else {
			s.logger.Error("sign in failed", "error", err)
			data["Error"] = msgLoginFailed
		}
		s.renderAuth(w, http.StatusUnauthorized, "login.html", data)
		return
	}

	s.saveCookie(w, r, b)
	s.redirect(w, r, "/")
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.renderAuth(w, http.StatusOK, "register.html", map[string]any{"Form": forms.Register{}})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	f := forms.ParseRegister(r.PostForm)
	data := map[string]any{"Form": f}
	if errs := f.Validate(); !errs.Ok() {
		data["Errors"] = errs
		s.renderAuth(w, http.StatusUnprocessableEntity, "register.html", data)
		return
	}

	b := browserFrom(r.Context())
	if err := b.Session.SignUp(r.Context(), f.Email, f.Password, f.FullName); err != nil {
		s.logger.Warn("sign up failed", "error", err)
		data["Error"] = providerMessage(err, msgSignUpFailed)
		s.renderAuth(w, http.StatusBadRequest, "register.html", data)
		return
	}

	s.renderAuth(w, http.StatusOK, "register.html", map[string]any{
		"Form":    forms.Register{},
		"Success": msgSignedUp,
	})
}

func (s *Server) handleForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	s.renderAuth(w, http.StatusOK, "forgot_password.html", map[string]any{"Form": forms.ForgotPassword{}})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	f := forms.ParseForgotPassword(r.PostForm)
	data := map[string]any{"Form": f}
	if errs := f.Validate(); !errs.Ok() {
		data["Errors"] = errs
		s.renderAuth(w, http.StatusUnprocessableEntity, "forgot_password.html", data)
		return
	}

	b := browserFrom(r.Context())
	if err := b.Session.ResetPassword(r.Context(), f.Email); err != nil {
		s.logger.Warn("password reset request failed", "error", err)
		data["Error"] = providerMessage(err, msgResetFailed)
		s.renderAuth(w, http.StatusBadRequest, "forgot_password.html", data)
		return
	}

	data["Success"] = msgResetSent
	s.renderAuth(w, http.StatusOK, "forgot_password.html", data)
}

func (s *Server) handleResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	f := forms.ResetPassword{Token: r.URL.Query().Get("token")}
	s.renderAuth(w, http.StatusOK, "reset_password.html", map[string]any{"Form": f})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	f := forms.ParseResetPassword(r.PostForm)
	data := map[string]any{"Form": f}
	if errs := f.Validate(); !errs.Ok() {
		data["Errors"] = errs
		s.renderAuth(w, http.StatusUnprocessableEntity, "reset_password.html", data)
		return
	}

	if err := s.resets.CompleteReset(r.Context(), f.Token, f.Password); err != nil {
		s.logger.Warn("password reset failed", "error", err)
		data["Error"] = providerMessage(err, msgResetFailed)
		s.renderAuth(w, http.StatusBadRequest, "reset_password.html", data)
		return
	}

	s.renderAuth(w, http.StatusOK, "reset_password.html", map[string]any{
		"Form":    forms.ResetPassword{},
		"Success": msgPasswordReset,
		"Done":    true,
	})
}

// handleLogout signs out and drops everything the server kept for the
// browser, including staged uploads.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r.Context())
	if err := b.Session.SignOut(r.Context()); err != nil {
		s.logger.Warn("sign out failed", "error", err)
	}
	s.registry.Remove(b.ID)
	s.clearCookie(w, r)
	s.redirect(w, r, "/login")
}

// providerMessage returns the provider's own message for err, which the
// auth screens show as is, or fallback when there is none.
func providerMessage(err error, fallback string) string {
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, identity.ErrUserExists),
		errors.Is(err, identity.ErrInvalidResetToken),
		errors.Is(err, identity.ErrInvalidCredentials):
		return err.Error()
	}
	return fallback
}
