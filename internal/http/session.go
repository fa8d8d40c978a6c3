package http

import (
	"context"
	"net/http"
	"time"

	"notaspese/internal/auth"
	"notaspese/internal/core"
	"notaspese/internal/log"
)

// SessionCookieName is the name of the session cookie.
const SessionCookieName = "session"

type sessionTokenKey struct{}

// loadSession resolves the session cookie into the current user. Requests
// without a valid session continue anonymously; a stale cookie is cleared.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		user, err := s.deps.Auth.CurrentUser(ctx, cookie.Value)
		if err != nil {
			log.FromContext(ctx).WithComponent(log.ComponentAuth).DebugContext(ctx, "Session rejected", log.FieldError, err)
			s.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		ctx = auth.WithUser(ctx, user)
		ctx = context.WithValue(ctx, sessionTokenKey{}, cookie.Value)
		ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldUserID, user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser redirects anonymous requests to the login page.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userFromRequest(r); !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// redirectIfAuthenticated sends signed-in users away from login and signup.
func (s *Server) redirectIfAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userFromRequest(r); ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromRequest(r *http.Request) (core.User, bool) {
	return auth.UserFromContext(r.Context())
}

func sessionToken(r *http.Request) string {
	token, _ := r.Context().Value(sessionTokenKey{}).(string)
	return token
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
