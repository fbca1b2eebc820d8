package ginmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	stepauth "github.com/stepauth/stepauth-go"
	"github.com/stepauth/stepauth-go/fake"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(client *stepauth.Client) *gin.Engine {
	r := gin.New()
	admin := r.Group("/admin", AdminGate(client))
	admin.GET("/stats", func(c *gin.Context) {
		identity := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"user": identity.ID})
	})
	return r
}

func TestAdminGate_TrustedFreshPassesThrough(t *testing.T) {
	client := fake.NewClient(
		fake.WithUser("u1", "alice@example.com", "pw", stepauth.RoleAdmin),
		fake.WithTrustedDevice("fake-device-000001", time.Now()),
	)
	if _, err := client.Ceremony().Authenticate(context.Background()); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	newRouter(client).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminGate_StaleBiometricChallenges(t *testing.T) {
	client := fake.NewClient(
		fake.WithUser("u1", "alice@example.com", "pw", stepauth.RoleAdmin),
		fake.WithTrustedDevice("fake-device-000001", time.Now().Add(-25*time.Hour)),
	)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	newRouter(client).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "reauth") {
		t.Errorf("expected reauth reason in body, got %s", body)
	}
}

func TestAdminGate_BlockedServesDecoy(t *testing.T) {
	client := fake.NewClient(fake.WithDecision(stepauth.DecisionBlocked))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	newRouter(client).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected decoy 404, got %d", w.Code)
	}
}

func TestAdminGate_ForceSignalChallenges(t *testing.T) {
	client := fake.NewClient(fake.WithDecision(stepauth.DecisionBlocked))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/stats?stepup=1", nil)
	newRouter(client).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected forced challenge 401, got %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "fresh") {
		t.Errorf("expected fresh reason in body, got %s", body)
	}
}

func TestAdminGate_NonAdminDenied(t *testing.T) {
	client := fake.NewClient(fake.WithUser("u1", "alice@example.com", "pw", stepauth.RoleUser))
	if _, err := client.Sessions().Login(context.Background(), stepauth.LoginInput{
		Identifier: "alice@example.com",
		Password:   "pw",
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	newRouter(client).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	client := fake.NewClient(fake.WithUser("u1", "alice@example.com", "pw", stepauth.RoleAdmin))
	if _, err := client.Sessions().Login(context.Background(), stepauth.LoginInput{
		Identifier: "alice@example.com",
		Password:   "pw",
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	r := gin.New()
	r.GET("/ops", RequireRole(client, stepauth.RoleMasterAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/dash", RequireRole(client, stepauth.RoleAdmin, stepauth.RoleMasterAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ops", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for master-admin-only route, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dash", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for admin route, got %d", w.Code)
	}
}
