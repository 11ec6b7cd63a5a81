package networth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/patrimo/patrimo/auth"
	"github.com/patrimo/patrimo/networth"
)

func newRouter(t *testing.T, svc *networth.Service, verifier *auth.Verifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	networth.NewHandler(svc, nil).Register(r, verifier)

	return r
}

func TestCalculateEndpoint(t *testing.T) {
	assets := downstream(t, map[string]string{"/api/assets/total": `{"total": 100000}`})
	defer assets.Close()

	liabilities := downstream(t, map[string]string{"/api/liabilities/total": `{"total": 30000}`})
	defer liabilities.Close()

	verifier := auth.NewVerifier("secret")
	r := newRouter(t, newService(t, assets.URL, liabilities.URL, nil), verifier)

	token, _ := verifier.Sign("u1", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/networth/calculate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	for _, want := range []string{`"userId":"u1"`, `"totalAssets":100000`, `"totalLiabilities":30000`, `"netWorth":70000`, `"calculatedAt":"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %s: %s", want, body)
		}
	}
}

func TestCalculateEndpointRequiresAuth(t *testing.T) {
	r := newRouter(t, newService(t, "http://127.0.0.1:1", "http://127.0.0.1:1", nil), auth.NewVerifier("secret"))

	req := httptest.NewRequest(http.MethodGet, "/api/networth/calculate", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestCalculateEndpointDownstreamFailureIsServerError(t *testing.T) {
	assets := downstream(t, map[string]string{"/api/assets/total": `{"total": 100000}`})
	defer assets.Close()

	verifier := auth.NewVerifier("secret")
	r := newRouter(t, newService(t, assets.URL, "http://127.0.0.1:1", nil), verifier)

	token, _ := verifier.Sign("u1", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/networth/calculate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: %d", w.Code)
	}

	// no partial numbers leak into the error response
	if strings.Contains(w.Body.String(), "100000") {
		t.Fatalf("partial data in error response: %s", w.Body.String())
	}
}

func TestBreakdownEndpoint(t *testing.T) {
	assets := downstream(t, map[string]string{
		"/api/assets": `[{"category":"cash","amount":50000},{"category":"investment","amount":50000}]`,
	})
	defer assets.Close()

	liabilities := downstream(t, map[string]string{
		"/api/liabilities": `[{"category":"long_term","amount":30000}]`,
	})
	defer liabilities.Close()

	verifier := auth.NewVerifier("secret")
	r := newRouter(t, newService(t, assets.URL, liabilities.URL, nil), verifier)

	token, _ := verifier.Sign("u1", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/networth/breakdown", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	for _, want := range []string{`"assetsByType":{`, `"cash":50000`, `"investment":50000`, `"long_term":30000`, `"assetCount":2`, `"liabilityCount":1`, `"netWorth":70000`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %s: %s", want, body)
		}
	}
}
