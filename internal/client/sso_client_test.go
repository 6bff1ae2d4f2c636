package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpsertSendsSecretAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(serviceHeader) != "traffic-secret" {
			t.Errorf("missing service secret header")
		}
		if r.URL.Path != "/api/provision/traffic/teacher" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"acc-1","username":"jdoe","app":"traffic","role":"teacher","is_active":true}`))
	}))
	defer srv.Close()

	c := NewSSOClient(srv.URL, "traffic-secret")
	acc, err := c.Upsert(context.Background(), "traffic", "teacher",
		ProvisionRequest{Username: "jdoe", Password: "pw", FullName: "J. Doe", EntityID: "ent-1"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if acc.ID != "acc-1" || acc.Role != "teacher" {
		t.Fatalf("decoded wrong account: %+v", acc)
	}
}

// A 4xx from the gateway and a dead upstream must surface as different
// error kinds so callers can decide whether to retry.
func TestErrorKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	c := NewSSOClient(srv.URL, "bad-secret")
	_, err := c.CheckUsername(context.Background(), "jdoe")
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}

	srv.Close()
	_, err = c.CheckUsername(context.Background(), "jdoe")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestDeleteByEntityEscapesPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"status":"deleted"}`))
	}))
	defer srv.Close()

	c := NewSSOClient(srv.URL, "s")
	if err := c.DeleteByEntity(context.Background(), "traffic", "ent/1"); err != nil {
		t.Fatalf("DeleteByEntity: %v", err)
	}
	if gotPath != "/api/provision/by-entity/ent%2F1" {
		t.Fatalf("entity id not escaped: %q", gotPath)
	}
}
