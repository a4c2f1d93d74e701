// Package auth keeps the admin session of the management API in a signed cookie.
package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	SessionName = "srm-switches-session"
	UserKey     = "authenticated"
	LoginAtKey  = "login_at"

	sessionMaxAge = 86400 * 7
)

type SessionStore struct {
	store  *sessions.CookieStore
	secure bool
}

// NewSessionStore signs cookies with secret. secure marks cookies HTTPS-only.
func NewSessionStore(secret string, secure bool) *SessionStore {
	return &SessionStore{
		store:  sessions.NewCookieStore([]byte(secret)),
		secure: secure,
	}
}

func (s *SessionStore) GetSession(r *http.Request) (*sessions.Session, error) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		// A cookie signed with an old secret is replaced by a fresh session
		session, err = s.store.New(r, SessionName)
		if session == nil {
			return nil, err
		}
	}

	session.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}

	return session, nil
}

func (s *SessionStore) IsAuthenticated(r *http.Request) bool {
	session, err := s.GetSession(r)
	if err != nil {
		return false
	}

	authenticated, ok := session.Values[UserKey].(bool)
	return ok && authenticated
}

// LoginTime returns when the current session logged in.
func (s *SessionStore) LoginTime(r *http.Request) (time.Time, bool) {
	session, err := s.GetSession(r)
	if err != nil {
		return time.Time{}, false
	}
	unix, ok := session.Values[LoginAtKey].(int64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

func (s *SessionStore) Login(r *http.Request, w http.ResponseWriter) error {
	session, err := s.GetSession(r)
	if err != nil {
		return err
	}

	session.Values[UserKey] = true
	session.Values[LoginAtKey] = time.Now().Unix()
	return session.Save(r, w)
}

func (s *SessionStore) Logout(r *http.Request, w http.ResponseWriter) error {
	session, err := s.GetSession(r)
	if err != nil {
		return err
	}

	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1

	return session.Save(r, w)
}

// Middleware rejects requests without an admin session.
func (s *SessionStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.IsAuthenticated(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
