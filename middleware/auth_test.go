package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/auth"
	"github.com/sridharsr7/personal-task-manager/store/memstore"
)

func TestBearerToken(t *testing.T) {
	testCases := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{header: "bearer   abc.def.ghi ", want: "abc.def.ghi"},
		{header: "Bearer", want: ""},
		{header: "Bearer ", want: ""},
		{header: "Basic dXNlcjpwYXNz", want: ""},
		{header: "abc.def.ghi", want: ""},
	}
	for _, tc := range testCases {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := BearerToken(req); got != tc.want {
			t.Errorf("BearerToken(%q) = %q; want %q", tc.header, got, tc.want)
		}
	}
}

func TestAuth(t *testing.T) {
	ctx := context.Background()
	users := memstore.New()
	tokens := auth.NewTokens("test-secret", time.Hour)
	svc := auth.NewService(users, tokens, 4)

	registered, err := svc.Register(ctx, api.RegisterRequest{Username: "alice", Password: "pw123", Email: "a@x.com", Mobile: "555"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	ghostToken, _, _ := tokens.Mint("deleted-user")
	expiredToken, _, _ := tokens.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }).Mint(registered.ID)
	foreignToken, _, _ := auth.NewTokens("other-secret", time.Hour).Mint(registered.ID)

	var seen api.User
	protected := Auth(svc, time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			t.Error("expected user in context")
		}
		seen = user
		w.WriteHeader(http.StatusOK)
	}))

	testCases := []struct {
		name               string
		header             string
		expectedStatusCode int
	}{
		{name: "Success - valid token", header: "Bearer " + registered.Token, expectedStatusCode: http.StatusOK},
		{name: "Error - no header", header: "", expectedStatusCode: http.StatusUnauthorized},
		{name: "Error - empty bearer", header: "Bearer ", expectedStatusCode: http.StatusUnauthorized},
		{name: "Error - garbage token", header: "Bearer not-a-token", expectedStatusCode: http.StatusForbidden},
		{name: "Error - expired token", header: "Bearer " + expiredToken, expectedStatusCode: http.StatusForbidden},
		{name: "Error - foreign secret", header: "Bearer " + foreignToken, expectedStatusCode: http.StatusForbidden},
		{name: "Error - user gone", header: "Bearer " + ghostToken, expectedStatusCode: http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			seen = api.User{}
			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			protected.ServeHTTP(rr, req)

			if rr.Code != tc.expectedStatusCode {
				t.Fatalf("expected status: %d, got: %d", tc.expectedStatusCode, rr.Code)
			}
			if rr.Code == http.StatusOK {
				if seen.ID != registered.ID || seen.PasswordHash != "" {
					t.Errorf("unexpected principal %+v", seen)
				}
				return
			}
			var body api.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil || body.Message == "" {
				t.Errorf("expected JSON error message; got %q, %v", rr.Body.String(), err)
			}
		})
	}
}

type authenticatorFunc func(ctx context.Context, token string) (api.User, error)

func (f authenticatorFunc) Authenticate(ctx context.Context, token string) (api.User, error) {
	return f(ctx, token)
}

func TestAuthBoundsLookup(t *testing.T) {
	testCases := []struct {
		name         string
		timeout      time.Duration
		wantDeadline bool
	}{
		{name: "with timeout", timeout: 50 * time.Millisecond, wantDeadline: true},
		{name: "without timeout", timeout: 0, wantDeadline: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var deadline time.Time
			var hasDeadline bool
			authn := authenticatorFunc(func(ctx context.Context, token string) (api.User, error) {
				deadline, hasDeadline = ctx.Deadline()
				return api.User{ID: "u1"}, nil
			})
			protected := Auth(authn, tc.timeout)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			req.Header.Set("Authorization", "Bearer t")
			rr := httptest.NewRecorder()
			start := time.Now()
			protected.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("expected status: %d, got: %d", http.StatusOK, rr.Code)
			}
			if hasDeadline != tc.wantDeadline {
				t.Fatalf("expected deadline=%t; got %t", tc.wantDeadline, hasDeadline)
			}
			if tc.wantDeadline && deadline.After(start.Add(tc.timeout+time.Second)) {
				t.Errorf("deadline %s is not bounded by the timeout", deadline)
			}
		})
	}
}

func TestAuthTimeoutAnswersGatewayTimeout(t *testing.T) {
	authn := authenticatorFunc(func(ctx context.Context, token string) (api.User, error) {
		<-ctx.Done()
		return api.User{}, ctx.Err()
	})
	protected := Auth(authn, 10*time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run when the lookup times out")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, req)

	if rr.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status: %d, got: %d", http.StatusGatewayTimeout, rr.Code)
	}
}
