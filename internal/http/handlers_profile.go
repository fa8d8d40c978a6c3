package http

import (
	"net/http"

	"notaspese/internal/log"
	"notaspese/internal/services"
)

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "profile.html", view{Title: "Profile"})
}

// handleDeleteProfile removes the account with all its expenses and
// attachments, then drops the session cookie.
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)

	if err := s.deps.Profiles.DeleteProfile(r.Context(), user.ID, sessionToken(r)); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to delete profile",
			log.FieldOperation, log.OpDelete,
			log.FieldError, err)
		s.render(w, r, http.StatusInternalServerError, "profile.html", view{Title: "Profile", Error: services.UserMessage(err)})
		return
	}

	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}
