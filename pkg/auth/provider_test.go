package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticProvider(t *testing.T) {
	p := StaticProvider{"alice": "wonderland"}

	t.Run("valid credentials", func(t *testing.T) {
		username, err := p.Authenticate(context.Background(), "alice", "wonderland")
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if username != "alice" {
			t.Errorf("username = %q", username)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := p.Authenticate(context.Background(), "alice", "hatter")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := p.Authenticate(context.Background(), "mallory", "")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})
}

func TestParseStaticUsers(t *testing.T) {
	p, err := ParseStaticUsers("alice:wonderland, bob:builder")
	if err != nil {
		t.Fatalf("ParseStaticUsers failed: %v", err)
	}
	if p["alice"] != "wonderland" || p["bob"] != "builder" {
		t.Errorf("parsed = %v", p)
	}

	if _, err := ParseStaticUsers("nopassword"); err == nil {
		t.Error("entry without colon should fail")
	}
}

func TestAuth0Provider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/ro":
			var req map[string]string
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("bad token request: %v", err)
			}
			if req["grant_type"] != "password" {
				t.Errorf("grant_type = %q", req["grant_type"])
			}
			if req["password"] != "wonderland" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_user_password"})
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer tok-123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"nickname": "alice"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	p := &Auth0Provider{baseURL: server.URL, clientID: "client-1", client: server.Client()}

	t.Run("valid credentials", func(t *testing.T) {
		username, err := p.Authenticate(context.Background(), "alice@example.com", "wonderland")
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if username != "alice" {
			t.Errorf("username = %q", username)
		}
	})

	t.Run("invalid credentials", func(t *testing.T) {
		_, err := p.Authenticate(context.Background(), "alice@example.com", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})
}
