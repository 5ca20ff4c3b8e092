package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func tokenHandler(t *testing.T, logins *int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token request method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing token form: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != "password" {
			t.Errorf("grant_type = %q, want %q", got, "password")
		}
		if r.PostFormValue("username") != "ops" || r.PostFormValue("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(logins, 1)
		json.NewEncoder(w).Encode(tokenResponse{ //nolint:errcheck // test handler
			AccessToken: "opaque-token",
			TokenType:   "bearer",
			ExpiresIn:   3600,
		})
	}
}

func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *int32) {
	t.Helper()
	var logins int32
	mux.HandleFunc("/auth/token", tokenHandler(t, &logins))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	session := NewSession(srv.Client(), srv.URL, "ops", "secret")
	return NewClient(srv.URL, session, 5*time.Second), &logins
}

func TestClient_ListDevices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/devices/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer opaque-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`[{"_id":"D1","name":"Pump A","mac":"aa:bb"},{"_id":"D2","name":"Pump B","mac":"cc:dd","latitude":10.5}]`)) //nolint:errcheck // test handler
	})
	client, logins := newTestClient(t, mux)

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].ID != "D1" || devices[0].Name != "Pump A" {
		t.Errorf("device[0] = %+v", devices[0])
	}
	if devices[1].Latitude == nil || *devices[1].Latitude != 10.5 {
		t.Error("latitude not decoded")
	}
	if *logins != 1 {
		t.Errorf("logins = %d, want 1", *logins)
	}
}

func TestClient_TokenReusedAcrossCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/devices/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`)) //nolint:errcheck // test handler
	})
	client, logins := newTestClient(t, mux)

	for i := 0; i < 3; i++ {
		if _, err := client.ListDevices(context.Background()); err != nil {
			t.Fatalf("ListDevices() #%d error = %v", i, err)
		}
	}
	if *logins != 1 {
		t.Errorf("logins = %d, want 1 (token must be cached)", *logins)
	}
}

func TestClient_Control(t *testing.T) {
	var got controlRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/devices/D1/control", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding control body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})
	client, _ := newTestClient(t, mux)

	if err := client.Control(context.Background(), "D1", ControlToggle, true); err != nil {
		t.Fatalf("Control() error = %v", err)
	}
	if got.Type != ControlToggle {
		t.Errorf("type = %q, want %q", got.Type, ControlToggle)
	}
	if v, ok := got.Payload.(bool); !ok || !v {
		t.Errorf("payload = %v, want true", got.Payload)
	}
}

func TestClient_ControlRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/devices/D1/control", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	})
	client, _ := newTestClient(t, mux)

	err := client.Control(context.Background(), "D1", ControlAuto, false)
	if !errors.Is(err, ErrCommandRejected) {
		t.Errorf("error = %v, want ErrCommandRejected", err)
	}
}

func TestClient_UnauthorizedInvalidatesSession(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/devices/", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`)) //nolint:errcheck // test handler
	})
	client, logins := newTestClient(t, mux)

	if _, err := client.ListDevices(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("first call error = %v, want ErrUnauthorized", err)
	}

	// The session was invalidated, so the next call logs in again.
	if _, err := client.ListDevices(context.Background()); err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if *logins != 2 {
		t.Errorf("logins = %d, want 2 (re-login after 401)", *logins)
	}
}

func TestSession_BadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	var logins int32
	mux.HandleFunc("/auth/token", tokenHandler(t, &logins))

	session := NewSession(srv.Client(), srv.URL, "ops", "wrong")
	if _, err := session.Token(context.Background()); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}
}

func TestTokenExpiry_PrefersExpClaim(t *testing.T) {
	// Unsigned JWT with exp = 2000000000 (2033-05-18). Header {"alg":"none"},
	// claims {"exp":2000000000}.
	token := "eyJhbGciOiJub25lIn0.eyJleHAiOjIwMDAwMDAwMDB9."

	got := tokenExpiry(tokenResponse{AccessToken: token, ExpiresIn: 60})
	want := time.Unix(2000000000, 0)
	if !got.Equal(want) {
		t.Errorf("expiry = %v, want %v", got, want)
	}
}

func TestTokenExpiry_FallsBackToExpiresIn(t *testing.T) {
	before := time.Now()
	got := tokenExpiry(tokenResponse{AccessToken: "not-a-jwt", ExpiresIn: 3600})
	if got.Before(before.Add(59*time.Minute)) || got.After(before.Add(61*time.Minute)) {
		t.Errorf("expiry = %v, want ~1h from now", got)
	}

	if got := tokenExpiry(tokenResponse{AccessToken: "not-a-jwt"}); !got.IsZero() {
		t.Errorf("expiry = %v, want zero when no hint at all", got)
	}
}
