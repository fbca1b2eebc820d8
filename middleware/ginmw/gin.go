// Package ginmw provides Gin HTTP middleware for the admin-access gate.
//
// All middleware functions accept a *stepauth.Client and use its service
// interfaces — no direct dependency on any specific backend.
package ginmw

import (
	"net/http"

	"github.com/gin-gonic/gin"
	stepauth "github.com/stepauth/stepauth-go"
	"github.com/stepauth/stepauth-go/gate"
)

// Context keys for storing gate data in gin.Context.
const (
	KeyIdentity = "stepauth_identity"
	KeyDecision = "stepauth_decision"
	KeyGateView = "stepauth_gate_view"
)

// GateOption configures AdminGate behavior.
type GateOption func(*gateConfig)

type gateConfig struct {
	decoyBody gin.H
}

// WithDecoyBody overrides the JSON body served on the decoy response so it
// can match the host application's real not-found shape.
func WithDecoyBody(body gin.H) GateOption {
	return func(cfg *gateConfig) { cfg.decoyBody = body }
}

// AdminGate returns Gin middleware that guards an admin route group. The
// view decision maps onto HTTP:
//
//   - NotFoundDecoy     → 404 with a generic body, indistinguishable from a
//     route that does not exist
//   - BiometricChallenge → 401 with the challenge reason
//   - PasswordLogin      → 401 login required
//   - AccessDenied       → 403
//   - AdminSurface       → pass through with the identity in context
func AdminGate(client *stepauth.Client, opts ...GateOption) gin.HandlerFunc {
	cfg := &gateConfig{decoyBody: gin.H{"error": "not found"}}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		force, stripped := gate.ConsumeForceSignal(c.Request.URL)
		if force {
			c.Request.URL = stripped
		}

		g := gate.New(client.Sessions(), client.Trust(), client.Ceremony(), client.Prober(),
			gate.WithLogger(client.Logger()),
			gate.WithForceSignal(force),
			gate.WithSuccessDelay(0),
		)
		view := g.Evaluate(c.Request.Context())
		c.Set(KeyGateView, view)

		switch view.State {
		case gate.StateAdminSurface:
			identity := client.Sessions().Snapshot().Identity
			c.Set(KeyIdentity, identity)
			c.Next()
		case gate.StateAccessDenied:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		case gate.StateBiometricChallenge:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "challenge required",
				"reason": string(view.Reason),
			})
		case gate.StatePasswordLogin:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
		default:
			c.AbortWithStatusJSON(http.StatusNotFound, cfg.decoyBody)
		}
	}
}

// RequireRole returns Gin middleware that checks the session identity
// against the given roles. Responds with 403 on mismatch, 401 when no
// identity is present.
func RequireRole(client *stepauth.Client, roles ...stepauth.Role) gin.HandlerFunc {
	allowed := make(map[stepauth.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		identity := client.Sessions().Snapshot().Identity
		if identity == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if !allowed[identity.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Set(KeyIdentity, identity)
		c.Next()
	}
}

// GetIdentity retrieves the session identity stored by AdminGate or
// RequireRole, or nil.
func GetIdentity(c *gin.Context) *stepauth.Identity {
	v, ok := c.Get(KeyIdentity)
	if !ok {
		return nil
	}
	identity, _ := v.(*stepauth.Identity)
	return identity
}

// GetGateView retrieves the gate view stored by AdminGate.
func GetGateView(c *gin.Context) (gate.View, bool) {
	v, ok := c.Get(KeyGateView)
	if !ok {
		return gate.View{}, false
	}
	view, ok := v.(gate.View)
	return view, ok
}
