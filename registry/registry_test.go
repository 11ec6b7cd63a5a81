package registry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/patrimo/patrimo/aggregate"
	"github.com/patrimo/patrimo/registry"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "services.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}

	return path
}

func TestLoadDescriptors(t *testing.T) {
	path := writeRegistry(t, `
services:
  - name: users
    baseAddress: http://localhost:3001
    probeRoute: /api/users/health
  - name: assets
    baseAddress: http://localhost:3002
`)

	descs, err := registry.LoadDescriptors(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(descs) != 2 {
		t.Fatalf("descriptor count: %d", len(descs))
	}

	if descs[0].ProbeRoute != "/api/users/health" {
		t.Fatalf("probe route: %s", descs[0].ProbeRoute)
	}

	// missing probeRoute falls back to /health
	if descs[1].ProbeRoute != "/health" {
		t.Fatalf("default probe route: %s", descs[1].ProbeRoute)
	}
}

func TestLoadDescriptorsRejectsBadFiles(t *testing.T) {
	if _, err := registry.LoadDescriptors(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}

	empty := writeRegistry(t, "services: []\n")
	if _, err := registry.LoadDescriptors(empty); err == nil {
		t.Fatal("expected an error for an empty registry")
	}

	nameless := writeRegistry(t, "services:\n  - baseAddress: http://x\n")
	if _, err := registry.LoadDescriptors(nameless); err == nil {
		t.Fatal("expected an error for a nameless service")
	}
}

func TestProbeDegradesPerItem(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer up.Close()

	descs := []aggregate.Descriptor{
		{Name: "users", BaseAddress: up.URL, ProbeRoute: "/health"},
		{Name: "assets", BaseAddress: "http://127.0.0.1:1", ProbeRoute: "/health"},
		{Name: "liabilities", BaseAddress: up.URL, ProbeRoute: "/health"},
	}

	reg := registry.New(descs, aggregate.NewClient(nil), time.Second, nil)

	statuses, err := reg.Probe(context.Background(), "")
	if err != nil {
		t.Fatalf("probe must not fail for individual outages: %v", err)
	}

	if len(statuses) != 3 {
		t.Fatalf("cardinality: %d", len(statuses))
	}

	want := []string{registry.StatusUp, registry.StatusDown, registry.StatusUp}
	for i, st := range statuses {
		if st.Status != want[i] {
			t.Fatalf("status %d (%s): got %s, want %s", i, st.Name, st.Status, want[i])
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer up.Close()

	descs := []aggregate.Descriptor{
		{Name: "users", BaseAddress: up.URL, ProbeRoute: "/health"},
		{Name: "documents", BaseAddress: "http://127.0.0.1:1", ProbeRoute: "/health"},
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	registry.NewHandler(registry.New(descs, aggregate.NewClient(nil), time.Second, nil), nil).Register(r)

	req := httptest.NewRequest(http.MethodGet, "/api/services/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "[") {
		t.Fatalf("multi-service response must be array-wrapped: %s", body)
	}

	for _, want := range []string{`"name":"users"`, `"status":"up"`, `"name":"documents"`, `"status":"down"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %s: %s", want, body)
		}
	}
}
