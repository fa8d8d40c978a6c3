package http

import (
	"errors"
	"net/http"
	"strconv"

	"notaspese/internal/auth"
	"notaspese/internal/log"
	"notaspese/internal/objectstore"
	"notaspese/internal/services"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := userFromRequest(r); !ok {
		s.render(w, r, http.StatusOK, "index.html", view{Title: "Expense manager"})
		return
	}
	s.render(w, r, http.StatusOK, "index.html", view{Title: "Dashboard"})
}

// credentialsView is the data of the login and signup pages.
type credentialsView struct {
	Email string
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", view{Title: "Log in", Data: credentialsView{}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	form, err := parseCredentials(r)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "login.html", view{Title: "Log in", Error: err.Error(), Data: credentialsView{}})
		return
	}
	data := credentialsView{Email: form.Email}

	token, err := s.deps.Auth.SignIn(r.Context(), form.Email, form.Password)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		} else {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Sign in failed", log.FieldOperation, log.OpSignIn, log.FieldError, err)
		}
		s.render(w, r, status, "login.html", view{Title: "Log in", Error: err.Error(), Data: data})
		return
	}

	s.setSessionCookie(w, token, s.deps.Auth.SessionTTL())
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "signup.html", view{Title: "Sign up", Data: credentialsView{}})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	form, err := parseCredentials(r)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "signup.html", view{Title: "Sign up", Error: err.Error(), Data: credentialsView{}})
		return
	}
	data := credentialsView{Email: form.Email}

	_, token, err := s.deps.Auth.SignUp(r.Context(), form.Email, form.Password)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrEmailInUse):
			status = http.StatusConflict
		case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
			status = http.StatusUnprocessableEntity
		default:
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Sign up failed", log.FieldOperation, log.OpSignUp, log.FieldError, err)
		}
		s.render(w, r, status, "signup.html", view{Title: "Sign up", Error: err.Error(), Data: data})
		return
	}

	s.setSessionCookie(w, token, s.deps.Auth.SessionTTL())
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleSignOut revokes the current session. Anonymous requests just lose
// their cookie.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := s.deps.Auth.SignOut(r.Context(), token); err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Sign out failed", log.FieldOperation, log.OpSignOut, log.FieldError, err)
			InternalServerError(services.MsgSignOut + " " + err.Error()).Write(w)
			return
		}
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleFile streams an attachment behind a signed link. The token is the
// only credential; no session is needed.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Signer.Verify(r.URL.Query().Get("token"))
	if err != nil {
		ForbiddenError("Invalid or expired link").Write(w)
		return
	}

	obj, err := s.deps.Blobs.Download(r.Context(), p)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			NotFoundError("File not found").Write(w)
			return
		}
		log.FromContext(r.Context()).WithComponent(log.ComponentObjectStore).ErrorContext(r.Context(), "Failed to download attachment",
			log.FieldAttachment, p,
			log.FieldOperation, log.OpDownload,
			log.FieldError, err)
		InternalServerError("Error while retrieving attachment.").Write(w)
		return
	}

	w.Header().Set("Content-Type", objectstore.ContentTypeOrDefault(obj.ContentType))
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.Header().Set("Content-Disposition", "inline")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}
