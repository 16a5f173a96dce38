// internal/handlers/auth.go
package handlers

import (
	"net/http"
)

// challengeHandler returns the one-time login message a wallet must sign.
func (s *Server) challengeHandler(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	msg, err := s.Challenges.Issue(req.Address)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// sessionHandler exchanges a signed challenge for a session token, also set as the
// auth_token cookie.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	address, err := s.Challenges.Verify(req.Address, req.PublicKey, req.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
		return
	}
	token, err := s.Issuer.CreateJWT(address)
	if err != nil {
		s.Logger.Errorf("sign session for %s: %v", address, err)
		writeError(w, http.StatusInternalServerError, "Internal", "could not create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "address": address})
}
