package routes

import (
	"context"
	"log"
	"net/http"

	"github.com/golang-jwt/jwt"
	"github.com/leadinbox/inbox-push/models"
)

// Claims carried by the session cookie. The cookie is issued by the main CRM
// backend with the shared signing key; this service only validates it.
type Claims struct {
	Username string `json:"username"`
	jwt.StandardClaims
}

type SessionHandler struct {
	config *models.Config
}

func NewSessionHandler(config *models.Config) *SessionHandler {
	return &SessionHandler{config: config}
}

// SessionMiddleware validates the session cookie and stores the caller's
// identity on the request context.
func (s *SessionHandler) SessionMiddleware(jwtKey []byte, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookieName := "inbox_session"
		if s.config.SSLMode != "off" {
			cookieName = "__Host-" + cookieName
		}
		session, err := r.Cookie(cookieName)
		if err != nil {
			log.Printf("SessionHandler: Cannot find session cookie: %s", err.Error())
			if r.Header.Get("Accept") == "application/json" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		tokenString := session.Value
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return jwtKey, nil
		})
		if err != nil {
			if err == jwt.ErrSignatureInvalid {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !token.Valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "identity", claims.Username)
		ctx = context.WithValue(ctx, "sessionExpiresAt", claims.ExpiresAt)
		h(w, r.WithContext(ctx))
	}
}
