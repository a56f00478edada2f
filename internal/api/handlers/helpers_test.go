package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"bugspotter/internal/core"
	"bugspotter/internal/types"
)

var testActor = &types.Actor{UserID: 7, Username: "ladybird", SessionID: "sess_test"}

// serve mounts register on a fresh router, attaches actor (when non-nil) the
// way AuthMiddleware would, and runs the request.
func serve(t *testing.T, register func(chi.Router), actor *types.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := types.WithRequestID(req.Context(), "req-test")
			ctx = types.WithClientIP(ctx, "198.51.100.7")
			if actor != nil {
				ctx = types.WithActor(ctx, *actor)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	register(r)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("User-Agent", "handler-test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// envelope decodes a JSON object response.
func envelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not a JSON object: %v\n%s", err, rec.Body.String())
	}
	return out
}

// expectError checks status and the envelope's error message.
func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, status, rec.Body.String())
	}
	body := envelope(t, rec)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if body["error"] != message {
		t.Errorf("error = %q, want %q", body["error"], message)
	}
}

func testValidator() *core.Validator {
	return core.NewValidator(nil)
}
