package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/utils"
)

func newStudentHandler() *StudentHandler {
	return NewStudentHandler(trafficCfg, audit.New(""))
}

func TestStudentVerifyMintsSession(t *testing.T) {
	h := newStudentHandler()
	launch, err := utils.NewLaunchToken(trafficCfg.LaunchSecret,
		utils.StudentIdentity{ExternalID: "stu-100", Name: "S. Student", Email: "s@example.edu"}, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewLaunchToken: %v", err)
	}

	rec := postJSON(t, h.Verify, "/api/student/verify", `{"launch_token":"`+launch+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	identity, err := utils.VerifyStudentSessionToken(trafficCfg.StudentSecret, resp.Token)
	if err != nil {
		t.Fatalf("minted token must verify as a student session: %v", err)
	}
	if identity.ExternalID != "stu-100" {
		t.Fatalf("identity not carried over: %+v", identity)
	}
}

func TestStudentVerifyRejectsExpiredLaunch(t *testing.T) {
	h := newStudentHandler()
	expired, _ := utils.NewLaunchToken(trafficCfg.LaunchSecret,
		utils.StudentIdentity{ExternalID: "stu-100", Name: "S. Student"}, -time.Minute)

	rec := postJSON(t, h.Verify, "/api/student/verify", `{"launch_token":"`+expired+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// A student session token must not work as a launch token input.
func TestStudentVerifyRejectsSessionToken(t *testing.T) {
	h := newStudentHandler()
	session, _, err := utils.NewStudentSessionToken(trafficCfg.LaunchSecret,
		utils.StudentIdentity{ExternalID: "stu-100", Name: "S. Student"}, time.Hour)
	if err != nil {
		t.Fatalf("NewStudentSessionToken: %v", err)
	}
	rec := postJSON(t, h.Verify, "/api/student/verify", `{"launch_token":"`+session+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStudentMe(t *testing.T) {
	h := newStudentHandler()
	token, _, err := utils.NewStudentSessionToken(trafficCfg.StudentSecret,
		utils.StudentIdentity{ExternalID: "stu-100", Name: "S. Student"}, time.Hour)
	if err != nil {
		t.Fatalf("NewStudentSessionToken: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/student/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	if err := h.Me(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "stu-100") {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/student/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	if err := h.Me(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token must be rejected, got %d", rec.Code)
	}
}
