package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gamewallet/internal/config"
)

func testConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Prefix:         "PG",
		BaseURL:        baseURL + "/",
		AgentCode:      "agent-1",
		AgentToken:     "tok",
		AgentSecret:    "sec",
		Currency:       "BRL",
		Lang:           "pt",
		TimeoutSeconds: 2,
	}
}

func TestLaunchAuthenticatesThenLaunches(t *testing.T) {
	wantCred := "Bearer " + base64.StdEncoding.EncodeToString([]byte("tok:sec"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/authentication":
			if r.Method != http.MethodPost || r.Header.Get("Authorization") != wantCred {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"access-1"}`))
		case "/games/game_launch":
			q := r.URL.Query()
			if r.Header.Get("Authorization") != "Bearer access-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if q.Get("agent_code") != "agent-1" || q.Get("game_id") != "crash" || q.Get("user_id") != "42" ||
				q.Get("currency") != "BRL" || q.Get("type") != "CHARGED" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"game_url":"https://play.example/crash","session_id":"s-1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient("poker-games", testConfig(srv.URL), srv.Client())
	if c.Name() != "poker-games" {
		t.Fatalf("name = %q", c.Name())
	}
	res, err := c.Launch(context.Background(), 42, "crash")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if res.GameURL != "https://play.example/crash" || res.SessionID != "s-1" {
		t.Fatalf("result = %+v", res)
	}
}

func TestLaunchErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "auth rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			want: ErrAuthFailed,
		},
		{
			name: "launch rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/auth/authentication" {
					_, _ = w.Write([]byte(`{"access_token":"a"}`))
					return
				}
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: ErrLaunchFailed,
		},
		{
			name: "empty token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
			want: ErrInvalidResponse,
		},
		{
			name: "garbage launch body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/auth/authentication" {
					_, _ = w.Write([]byte(`{"access_token":"a"}`))
					return
				}
				_, _ = w.Write([]byte(`<html>`))
			},
			want: ErrInvalidResponse,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := NewClient("pg", testConfig(srv.URL), srv.Client()).Launch(context.Background(), 1, "g")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLaunchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient("pg", testConfig(srv.URL), srv.Client()).Launch(ctx, 1, "g")
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("err = %v, want ErrProviderTimeout", err)
	}
}

func TestLaunchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient("pg", testConfig(url), nil).Launch(context.Background(), 1, "g")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}
