package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/middleware"
	"github.com/polytech-superapp/campus-sso/internal/repository"
)

var gatewaySecrets = map[string]string{
	"services-secret": "services",
	"traffic-secret":  "traffic",
}

func newProvisionHandler(t *testing.T) (*ProvisionHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewProvisionHandler(testCfg, repository.NewAccountRepo(db), audit.New("")), mock
}

// provisionAs runs the upsert handler behind the capability middleware,
// exactly as routed.
func provisionAs(t *testing.T, h *ProvisionHandler, secret, app, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/provision/"+app+"/"+role, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.ServiceHeader, secret)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("app", "role")
	c.SetParamValues(app, role)

	handler := middleware.Capability(testCfg.JWTSecret, gatewaySecrets, audit.New(""))(h.Upsert)
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec
}

const provisionBody = `{"username":"jdoe","password":"pw","full_name":"J. Doe","entity_id":"ent-1"}`

func TestProvisionUpsertCreates(t *testing.T) {
	h, mock := newProvisionHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE app=(.+) AND role=(.+) AND entity_id=").
		WithArgs("services", "staff", "ent-1").
		WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE username=").
		WithArgs("jdoe").
		WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id=").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow("acc-new", "jdoe", "$2a$04$h", "J. Doe", "services", "staff", "ent-1", nil, true, time.Now()))
	mock.ExpectCommit()

	rec := provisionAs(t, h, "services-secret", "services", "staff", provisionBody)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "acc-new") {
		t.Fatalf("expected provisioned account, got %d: %s", rec.Code, rec.Body.String())
	}
}

// A service may only provision inside its own app, whatever it asks
// for in the path.
func TestProvisionCrossAppForbidden(t *testing.T) {
	h, _ := newProvisionHandler(t)
	rec := provisionAs(t, h, "services-secret", "traffic", "teacher", provisionBody)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-app provisioning must be forbidden, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProvisionUnknownRole(t *testing.T) {
	h, _ := newProvisionHandler(t)
	rec := provisionAs(t, h, "traffic-secret", "traffic", "pilot", provisionBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown role must be a bad request, got %d", rec.Code)
	}
}

func TestProvisionUnknownSecret(t *testing.T) {
	h, _ := newProvisionHandler(t)
	rec := provisionAs(t, h, "guessed", "services", "staff", provisionBody)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unknown caller must be forbidden, got %d", rec.Code)
	}
}
