package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret-key-32-characters!!"

// requestWithSession copies the session cookie of a response into a new request.
func requestWithSession(w *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == SessionName {
			req.AddCookie(cookie)
			break
		}
	}
	return req
}

func TestSessionOperations(t *testing.T) {
	store := NewSessionStore(testSecret, false)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	t.Run("Get new session", func(t *testing.T) {
		session, err := store.GetSession(req)
		if err != nil {
			t.Fatalf("Failed to get new session: %v", err)
		}
		if !session.IsNew {
			t.Error("New session should be marked as new")
		}
	})

	t.Run("Not authenticated initially", func(t *testing.T) {
		if store.IsAuthenticated(req) {
			t.Error("Should not be authenticated initially")
		}
		if _, ok := store.LoginTime(req); ok {
			t.Error("Login time should not be set initially")
		}
	})

	t.Run("Login sets cookie", func(t *testing.T) {
		if err := store.Login(req, w); err != nil {
			t.Fatalf("Failed to login: %v", err)
		}

		var found *http.Cookie
		for _, cookie := range w.Result().Cookies() {
			if cookie.Name == SessionName {
				found = cookie
			}
		}
		if found == nil {
			t.Fatal("Session cookie should be set")
		}
		if !found.HttpOnly {
			t.Error("Session cookie should be HttpOnly")
		}
		if found.Secure {
			t.Error("Session cookie should not be Secure without TLS")
		}
		if len(found.Value) < 20 || found.Value == "true" {
			t.Error("Session cookie should be signed, not plaintext")
		}
	})

	t.Run("Authenticated after login", func(t *testing.T) {
		withCookie := requestWithSession(w)
		if !store.IsAuthenticated(withCookie) {
			t.Error("Should be authenticated after login")
		}
		loginAt, ok := store.LoginTime(withCookie)
		if !ok || time.Since(loginAt) > time.Minute {
			t.Errorf("Unexpected login time %v (ok=%v)", loginAt, ok)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		wLogout := httptest.NewRecorder()
		if err := store.Logout(requestWithSession(w), wLogout); err != nil {
			t.Fatalf("Failed to logout: %v", err)
		}
		if store.IsAuthenticated(requestWithSession(wLogout)) {
			t.Error("Should not be authenticated after logout")
		}
	})
}

func TestSecureCookie(t *testing.T) {
	store := NewSessionStore(testSecret, true)
	w := httptest.NewRecorder()

	if err := store.Login(httptest.NewRequest("GET", "/", nil), w); err != nil {
		t.Fatalf("Failed to login: %v", err)
	}
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == SessionName && !cookie.Secure {
			t.Error("Session cookie should be Secure")
		}
	}
}

func TestSessionFromOtherSecret(t *testing.T) {
	w := httptest.NewRecorder()
	if err := NewSessionStore("another-secret-key-32-characters", false).Login(httptest.NewRequest("GET", "/", nil), w); err != nil {
		t.Fatalf("Failed to login: %v", err)
	}

	store := NewSessionStore(testSecret, false)
	req := requestWithSession(w)
	if store.IsAuthenticated(req) {
		t.Error("Cookie signed with another secret must not authenticate")
	}

	session, err := store.GetSession(req)
	if err != nil || session == nil {
		t.Fatalf("Invalid cookie should yield a fresh session, got %v", err)
	}
}

func TestInvalidCookie(t *testing.T) {
	store := NewSessionStore(testSecret, false)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", SessionName+"=invalid-data")

	if store.IsAuthenticated(req) {
		t.Error("Should not be authenticated with invalid session data")
	}
}

func TestMiddleware(t *testing.T) {
	store := NewSessionStore(testSecret, false)
	handler := store.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("Rejects anonymous requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/routers", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("Passes logged in requests", func(t *testing.T) {
		login := httptest.NewRecorder()
		if err := store.Login(httptest.NewRequest("POST", "/api/login", nil), login); err != nil {
			t.Fatalf("Failed to login: %v", err)
		}

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestWithSession(login))
		if w.Code != http.StatusNoContent {
			t.Errorf("Expected 204, got %d", w.Code)
		}
	})
}
