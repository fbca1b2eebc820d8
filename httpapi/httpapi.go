// Package httpapi adapts the auth server's HTTP contract to the backend
// interfaces consumed by session, ceremony, and device, plus the allow-list
// prober. The refresh cookie rides a cookie jar; the bearer token is
// injected per request from a caller-supplied source and never stored here.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	stepauth "github.com/stepauth/stepauth-go"
	"github.com/stepauth/stepauth-go/ceremony"
	"github.com/stepauth/stepauth-go/device"
	"github.com/stepauth/stepauth-go/session"
)

const maxErrorBody = 1 << 20

// Client talks to the auth server. One Client implements all backend
// contracts so a single cookie jar covers every call.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	token  func() string
}

var (
	_ session.Backend       = (*Client)(nil)
	_ ceremony.Backend      = (*Client)(nil)
	_ device.Backend        = (*Client)(nil)
	_ stepauth.AccessProber = (*Client)(nil)
)

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client. The caller is then
// responsible for attaching a cookie jar if refresh cookies should work.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokenSource supplies the bearer token per request. The session
// manager owns the token; wire its snapshot accessor here after
// construction ordering allows it.
func WithTokenSource(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// New creates a client for the given endpoint, e.g. "https://api.example.com".
func New(endpoint string, opts ...Option) (*Client, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("stepauth/httpapi: parse endpoint: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("stepauth/httpapi: cookie jar: %w", err)
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 10 * time.Second, Jar: jar},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SetTokenSource installs the bearer source after construction. The session
// manager needs the client to exist before it can hand out tokens.
func (c *Client) SetTokenSource(fn func() string) { c.token = fn }

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("stepauth/httpapi: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reader)
	if err != nil {
		return nil, fmt.Errorf("stepauth/httpapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

// apiError is a non-2xx response with its body decoded for classification.
type apiError struct {
	Status     int
	RetryAfter time.Duration
	Body       errorBody
}

type errorBody struct {
	Message             string `json:"message"`
	Error               string `json:"error"`
	Banned              bool   `json:"banned"`
	Reason              string `json:"reason"`
	SupportContact      string `json:"supportContact"`
	AppealToken         string `json:"appealToken"`
	RequireVerification bool   `json:"requireVerification"`
	AccountExists       bool   `json:"accountExists"`
	Email               string `json:"email"`
}

func (e *apiError) Error() string {
	msg := e.Body.Message
	if msg == "" {
		msg = e.Body.Error
	}
	if msg == "" {
		return fmt.Sprintf("stepauth/httpapi: status %d", e.Status)
	}
	return fmt.Sprintf("stepauth/httpapi: status %d: %s", e.Status, msg)
}

// do executes the request and decodes a 2xx body into out (when non-nil).
// Non-2xx responses come back as *apiError with the body already decoded.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stepauth/httpapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode, RetryAfter: retryAfter(resp)}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(raw, &apiErr.Body)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("stepauth/httpapi: decode %s %s: %w", method, path, err)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// --- session.Backend ---

type authEnvelope struct {
	User        *stepauth.Identity `json:"user"`
	AccessToken string             `json:"accessToken"`
}

// Login performs the credential login. Server-flagged ban and
// verification-required outcomes become their typed errors.
func (c *Client) Login(ctx context.Context, in stepauth.LoginInput) (*session.AuthResponse, error) {
	var envelope authEnvelope
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"identifier": in.Identifier,
		"password":   in.Password,
	}, &envelope)
	if err != nil {
		return nil, c.classifyAuthError(err)
	}
	return &session.AuthResponse{Identity: envelope.User, AccessToken: envelope.AccessToken}, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, in stepauth.RegisterInput) (*session.AuthResponse, error) {
	var envelope authEnvelope
	err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":    in.Email,
		"password": in.Password,
		"name":     in.Name,
	}, &envelope)
	if err != nil {
		return nil, c.classifyAuthError(err)
	}
	return &session.AuthResponse{Identity: envelope.User, AccessToken: envelope.AccessToken}, nil
}

func (c *Client) classifyAuthError(err error) error {
	apiErr, ok := err.(*apiError)
	if !ok {
		return err
	}
	switch {
	case apiErr.Body.Banned:
		return &stepauth.BanError{Info: stepauth.BanInfo{
			Reason:         apiErr.Body.Reason,
			SupportContact: apiErr.Body.SupportContact,
			AppealToken:    apiErr.Body.AppealToken,
		}}
	case apiErr.Body.RequireVerification:
		return &stepauth.VerificationRequiredError{Email: apiErr.Body.Email}
	case apiErr.Body.AccountExists:
		return stepauth.ErrAccountExists
	case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
		return stepauth.ErrUnauthenticated
	}
	return apiErr
}

// Refresh exchanges the refresh cookie for a bearer token. A 401 or 403
// is the single definitive "not logged in" signal.
func (c *Client) Refresh(ctx context.Context) (*session.RefreshResponse, error) {
	var envelope authEnvelope
	if err := c.do(ctx, http.MethodGet, "/auth/refresh", nil, &envelope); err != nil {
		if apiErr, ok := err.(*apiError); ok &&
			(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, stepauth.ErrUnauthenticated
		}
		return nil, err
	}
	return &session.RefreshResponse{AccessToken: envelope.AccessToken, Identity: envelope.User}, nil
}

// Profile fetches the full identity with an explicit bearer token,
// bypassing the configured token source.
func (c *Client) Profile(ctx context.Context, accessToken string) (*stepauth.Identity, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stepauth/httpapi: GET /auth/me: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, stepauth.ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apiError{Status: resp.StatusCode}
	}

	var identity stepauth.Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("stepauth/httpapi: decode profile: %w", err)
	}
	return &identity, nil
}

// Logout terminates the server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// --- ceremony.Backend ---

type challengeEnvelope struct {
	ChallengeID string          `json:"challengeId"`
	Options     json.RawMessage `json:"options"`
}

// Challenge requests a fresh authentication challenge.
func (c *Client) Challenge(ctx context.Context) (*stepauth.Challenge, error) {
	var envelope challengeEnvelope
	if err := c.do(ctx, http.MethodPost, "/.d/challenge", nil, &envelope); err != nil {
		return nil, c.classifyCeremonyError(err)
	}
	return &stepauth.Challenge{ID: envelope.ChallengeID, Options: envelope.Options}, nil
}

// Verify submits the assertion response for server verification.
func (c *Client) Verify(ctx context.Context, challengeID string, credential []byte) (*stepauth.CeremonyResult, error) {
	var result stepauth.CeremonyResult
	err := c.do(ctx, http.MethodPost, "/.d/verify", map[string]any{
		"challengeId": challengeID,
		"credential":  json.RawMessage(credential),
	}, &result)
	if err != nil {
		return nil, c.classifyCeremonyError(err)
	}
	return &result, nil
}

// EnrollOptions requests attestation options for device enrollment. The
// label travels with the request so the server can show it in device lists.
func (c *Client) EnrollOptions(ctx context.Context, label string) (*stepauth.Challenge, error) {
	var envelope challengeEnvelope
	err := c.do(ctx, http.MethodPost, "/.d/register/options", map[string]string{
		"label": label,
	}, &envelope)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok && apiErr.Status == http.StatusBadRequest {
			return nil, stepauth.ErrDeviceLimit
		}
		return nil, c.classifyCeremonyError(err)
	}
	return &stepauth.Challenge{ID: envelope.ChallengeID, Options: envelope.Options}, nil
}

// EnrollVerify submits the attestation response.
func (c *Client) EnrollVerify(ctx context.Context, challengeID string, credential []byte) (*stepauth.EnrollResult, error) {
	var result stepauth.EnrollResult
	err := c.do(ctx, http.MethodPost, "/.d/register/verify", map[string]any{
		"challengeId": challengeID,
		"credential":  json.RawMessage(credential),
	}, &result)
	if err != nil {
		return nil, c.classifyCeremonyError(err)
	}
	return &result, nil
}

// classifyCeremonyError maps HTTP statuses onto the ceremony failure
// taxonomy. Transport errors pass through untouched so the ceremony client
// can apply its own offline/timeout classification.
func (c *Client) classifyCeremonyError(err error) error {
	apiErr, ok := err.(*apiError)
	if !ok {
		return err
	}
	switch {
	case apiErr.Status == http.StatusTooManyRequests:
		ce := stepauth.NewCeremonyError(stepauth.FailureRateLimited, "too many attempts")
		ce.RetryAfter = apiErr.RetryAfter
		return ce
	case apiErr.Status == http.StatusGone:
		return stepauth.NewCeremonyError(stepauth.FailureChallengeExpired, "challenge expired")
	case apiErr.Status >= 500:
		return stepauth.NewCeremonyError(stepauth.FailureServerError, apiErr.Error())
	case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
		return stepauth.ErrUnauthenticated
	case apiErr.Status == http.StatusBadRequest && mentionsCredential(apiErr.Body):
		return stepauth.NewCeremonyError(stepauth.FailureCredentialNotRecognized, apiErr.Error())
	}
	// The server answered; any remaining status is an unclassified failure,
	// never a transport-level one.
	return stepauth.WrapCeremonyError(stepauth.FailureUnknown, apiErr)
}

func mentionsCredential(body errorBody) bool {
	msg := strings.ToLower(body.Message + " " + body.Error)
	return strings.Contains(msg, "credential")
}

// --- device.Backend ---

// List returns the enrolled devices.
func (c *Client) List(ctx context.Context) ([]stepauth.Device, error) {
	var devices []stepauth.Device
	if err := c.do(ctx, http.MethodGet, "/.d/devices", nil, &devices); err != nil {
		return nil, c.classifyDeviceError(err)
	}
	return devices, nil
}

// Rename updates a device label.
func (c *Client) Rename(ctx context.Context, deviceID, label string) error {
	err := c.do(ctx, http.MethodPatch, "/.d/devices/"+url.PathEscape(deviceID), map[string]string{
		"label": label,
	}, nil)
	return c.classifyDeviceError(err)
}

// Revoke deletes one device. An unknown ID surfaces as device.ErrNotFound
// so the caller can treat it as already revoked.
func (c *Client) Revoke(ctx context.Context, deviceID string) error {
	err := c.do(ctx, http.MethodDelete, "/.d/devices/"+url.PathEscape(deviceID), nil, nil)
	return c.classifyDeviceError(err)
}

// RevokeAll deletes every enrolled device.
func (c *Client) RevokeAll(ctx context.Context) error {
	return c.classifyDeviceError(c.do(ctx, http.MethodDelete, "/.d/devices", nil, nil))
}

func (c *Client) classifyDeviceError(err error) error {
	apiErr, ok := err.(*apiError)
	if !ok {
		return err
	}
	switch apiErr.Status {
	case http.StatusNotFound:
		return device.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return stepauth.ErrUnauthenticated
	}
	return apiErr
}

// --- stepauth.AccessProber ---

// Probe resolves the network-origin allow-list decision. The lighter
// ip-check endpoint is preferred; a 404 there is ambiguous between
// "blocked" and "endpoint not deployed", so it falls back to the stats
// probe. Any non-404 error status still proves the route exists, which is
// all the decision needs.
func (c *Client) Probe(ctx context.Context) stepauth.AccessDecision {
	status, err := c.head(ctx, "/admin/ip-check")
	if err != nil {
		c.logger.Debug("allow-list probe unreachable", "error", err)
		return stepauth.DecisionUnknown
	}
	if status != http.StatusNotFound {
		return decisionFromStatus(status)
	}

	status, err = c.head(ctx, "/admin/stats")
	if err != nil {
		c.logger.Debug("allow-list fallback probe unreachable", "error", err)
		return stepauth.DecisionUnknown
	}
	return decisionFromStatus(status)
}

func (c *Client) head(ctx context.Context, path string) (int, error) {
	req, err := c.newRequest(ctx, http.MethodHead, path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return resp.StatusCode, nil
}

func decisionFromStatus(status int) stepauth.AccessDecision {
	switch {
	case status >= 200 && status <= 299:
		return stepauth.DecisionAllowed
	case status == http.StatusNotFound:
		return stepauth.DecisionBlocked
	default:
		// The endpoint exists but wants auth; the origin is recognized.
		return stepauth.DecisionAllowed
	}
}
