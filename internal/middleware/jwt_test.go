package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/model"
	"github.com/polytech-superapp/campus-sso/internal/utils"
)

func runProtected(t *testing.T, mw []echo.MiddlewareFunc, authHeader string) int {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec.Code
}

func mintToken(t *testing.T, app, role string) string {
	t.Helper()
	token, _, err := utils.NewAccessToken(testJWTSecret, model.Account{
		ID: "acc-1", Username: "u", FullName: "U", App: app, Role: role, IsActive: true,
	}, time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	return token
}

func TestJWTAuthAcceptsValidBearer(t *testing.T) {
	code := runProtected(t, []echo.MiddlewareFunc{JWTAuth(testJWTSecret, audit.New(""))},
		"Bearer "+mintToken(t, model.AppTraffic, "teacher"))
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestJWTAuthUniformRejection(t *testing.T) {
	for _, header := range []string{"", "Bearer garbage", "Basic abc", "Bearer "} {
		code := runProtected(t, []echo.MiddlewareFunc{JWTAuth(testJWTSecret, audit.New(""))}, header)
		if code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, code)
		}
	}
}

// Every bearer rejection must leave an audit line; a credential
// stuffing run against a protected route cannot be invisible.
func TestJWTAuthAuditsRejection(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.NewWithOutput(&buf)

	code := runProtected(t, []echo.MiddlewareFunc{JWTAuth(testJWTSecret, sink)}, "Bearer garbage")
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if !strings.Contains(buf.String(), `"event":"token_rejected"`) {
		t.Fatalf("rejection left no audit trail: %s", buf.String())
	}

	buf.Reset()
	code = runProtected(t, []echo.MiddlewareFunc{JWTAuth(testJWTSecret, sink)},
		"Bearer "+mintToken(t, model.AppTraffic, "teacher"))
	if code != http.StatusOK || buf.Len() != 0 {
		t.Fatalf("accepted bearer must not log a rejection: %d %s", code, buf.String())
	}
}

func TestRequireAppRole(t *testing.T) {
	chain := func() []echo.MiddlewareFunc {
		sink := audit.New("")
		return []echo.MiddlewareFunc{
			JWTAuth(testJWTSecret, sink),
			RequireAppRole(sink, model.AppTraffic, "admin"),
		}
	}

	if code := runProtected(t, chain(), "Bearer "+mintToken(t, model.AppTraffic, "admin")); code != http.StatusOK {
		t.Fatalf("traffic admin must pass, got %d", code)
	}
	if code := runProtected(t, chain(), "Bearer "+mintToken(t, model.AppTraffic, "teacher")); code != http.StatusForbidden {
		t.Fatalf("teacher must be forbidden on an admin route, got %d", code)
	}
	if code := runProtected(t, chain(), "Bearer "+mintToken(t, model.AppServices, "admin")); code != http.StatusForbidden {
		t.Fatalf("wrong-app admin must be forbidden, got %d", code)
	}
	if code := runProtected(t, chain(), "Bearer "+mintToken(t, model.AppSSO, "admin")); code != http.StatusOK {
		t.Fatalf("sso super-admin must pass every gate, got %d", code)
	}
}

func TestRequireAppRoleAuditsDenial(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.NewWithOutput(&buf)
	chain := []echo.MiddlewareFunc{
		JWTAuth(testJWTSecret, sink),
		RequireAppRole(sink, model.AppTraffic, "admin"),
	}

	if code := runProtected(t, chain, "Bearer "+mintToken(t, model.AppTraffic, "teacher")); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	out := buf.String()
	if !strings.Contains(out, `"event":"access_denied"`) || !strings.Contains(out, `"reason":"wrong_role"`) {
		t.Fatalf("role denial left no audit trail: %s", out)
	}
	if !strings.Contains(out, `"actor_account_id":"acc-1"`) {
		t.Fatalf("denial must name the actor: %s", out)
	}
}
