package web

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"smarthq-bridge/internal/automation"
	"smarthq-bridge/internal/events"
	"smarthq-bridge/internal/smarthq"
	"smarthq-bridge/internal/store"
)

func setupAutomationServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.NewBoltStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mgr, err := automation.NewManager(filepath.Join(t.TempDir(), "scripts"))
	if err != nil {
		t.Fatal(err)
	}

	session := &fakeSession{authorized: true}
	cloud := &fakeWebCloud{services: make(map[string][]smarthq.ServiceDescriptor)}
	bus := events.NewBus(logger)

	srv := NewServer(session, cloud, db, bus, logger, WithAutomation(nil, mgr))
	t.Cleanup(srv.Stop)
	return srv
}

func TestAPICreateAndListAutomations(t *testing.T) {
	srv := setupAutomationServer(t)

	body := `{"name":"Night Mode","description":"Dim the dispenser light","lua_code":"smarthq.log(\"hi\")","enabled":true}`
	req := httptest.NewRequest("POST", "/api/automations", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d, body = %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var saved automation.Script
	if err := json.NewDecoder(w.Body).Decode(&saved); err != nil {
		t.Fatal(err)
	}
	if saved.ID != "night_mode" {
		t.Errorf("id = %q, want night_mode", saved.ID)
	}

	req = httptest.NewRequest("GET", "/api/automations", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", w.Code, http.StatusOK)
	}
	var scripts []automation.Script
	if err := json.NewDecoder(w.Body).Decode(&scripts); err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 1 {
		t.Errorf("script count = %d, want 1", len(scripts))
	}
}

func TestAPICreateAutomationRequiresName(t *testing.T) {
	srv := setupAutomationServer(t)

	req := httptest.NewRequest("POST", "/api/automations", bytes.NewBufferString(`{"lua_code":"x=1"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAPIToggleAutomation(t *testing.T) {
	srv := setupAutomationServer(t)

	body := `{"name":"Toggle Me","lua_code":"x=1","enabled":true}`
	req := httptest.NewRequest("POST", "/api/automations", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}

	req = httptest.NewRequest("POST", "/api/automations/toggle_me/toggle", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	var saved automation.Script
	if err := json.NewDecoder(w.Body).Decode(&saved); err != nil {
		t.Fatal(err)
	}
	if saved.Meta.Enabled {
		t.Error("enabled = true after toggle, want false")
	}
}

func TestAPIDeleteAutomation(t *testing.T) {
	srv := setupAutomationServer(t)

	body := `{"name":"Doomed","lua_code":"x=1","enabled":false}`
	req := httptest.NewRequest("POST", "/api/automations", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}

	req = httptest.NewRequest("DELETE", "/api/automations/doomed", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest("GET", "/api/automations/doomed", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIAutomationsUnavailable(t *testing.T) {
	srv, _, _, _ := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/automations", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}
