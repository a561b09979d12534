// Package auth implements the Hub's external credential-endpoint
// client: it authenticates a username/password against a configured
// HTTP endpoint, caches successful results, and classifies SuperUser
// status from the returned group list (§4.8).
package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mumble.info/grumble/pkg/errs"
)

// RejectType mirrors the Mumble Reject.RejectType values the
// credential endpoint's failure modes map onto (§4.8).
type RejectType int

const (
	RejectNone        RejectType = 0
	RejectWrongUserPW RejectType = 2
)

// Result is a successful or rejected authentication outcome.
type Result struct {
	Success     bool
	Reject      RejectType
	UserID      int32
	Username    string
	DisplayName string
	Groups      []string
}

// SuperUser reports whether the result's groups include the built-in
// admin/superuser designation (§4.8 "SuperUser is determined by groups
// containing admin or superuser").
func (r *Result) SuperUser() bool {
	for _, g := range r.Groups {
		if g == "admin" || g == "superuser" {
			return true
		}
	}
	return false
}

// ClientInfo describes the connecting client (§4.8 `client_info`).
// Of its fields only CertHash is sent to the credential endpoint, plus
// IP for JSON bodies; the rest are not forwarded.
type ClientInfo struct {
	IP        string
	IPVersion int
	Release   string
	Version   uint32
	OS        string
	OSVersion string
	CertHash  string
}

// Request is one authenticate-user attempt as relayed from an Edge's
// `edge.authenticateUser` call.
type Request struct {
	SessionID uint32
	ServerID  string
	Username  string
	Password  string
	Tokens    []string
	Client    ClientInfo
}

// ContentType selects how credentials are encoded in the POST body to
// the credential endpoint (§4.8 "POST JSON or form-urlencoded").
type ContentType int

const (
	ContentTypeJSON ContentType = iota
	ContentTypeForm
)

// FieldNames configures which keys the credential endpoint's JSON/form
// response carries its result under, since the contract leaves field
// names to the deployment (§4.8 "response fields configurable").
type FieldNames struct {
	UserID      string
	Username    string
	DisplayName string
	Groups      string
}

func defaultFieldNames() FieldNames {
	return FieldNames{UserID: "user_id", Username: "username", DisplayName: "displayName", Groups: "groups"}
}

// Config configures one Coordinator.
type Config struct {
	Endpoint          string
	ContentType       ContentType
	Fields            FieldNames
	TransportTimeout  time.Duration // default 5s (§5)
	CacheTTL          time.Duration
	CertReportEndpoint string // optional, async cert-fingerprint report target
	AllowCacheFallback bool   // re-check the cache when the endpoint is unreachable; only unexpired entries are served, never stale ones
}

// Coordinator authenticates credentials against the configured
// endpoint, caching successes (§4.8).
type Coordinator struct {
	cfg    Config
	client *http.Client
	cache  Cache
}

// New builds a Coordinator. cache may be a *RedisCache or *MemCache;
// callers needing no cache at all can pass MemCache with a zero TTL.
func New(cfg Config, cache Cache) *Coordinator {
	if cfg.TransportTimeout == 0 {
		cfg.TransportTimeout = 5 * time.Second
	}
	if cfg.Fields == (FieldNames{}) {
		cfg.Fields = defaultFieldNames()
	}
	return &Coordinator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.TransportTimeout},
		cache:  cache,
	}
}

// Authenticate checks req against the cache, then the credential
// endpoint on a miss (§4.8 failure semantics).
func (c *Coordinator) Authenticate(ctx context.Context, req Request) (*Result, error) {
	key := cacheKey(req.Username, req.Password)

	if cached, ok := c.cache.Get(ctx, key); ok {
		return cached, nil
	}

	result, err := c.callEndpoint(ctx, req)
	if err != nil {
		if c.cfg.AllowCacheFallback {
			if stale, ok := c.cache.Get(ctx, key); ok {
				return stale, nil
			}
		}
		return nil, errs.Wrap(errs.AuthFailure, "authentication service unavailable", err)
	}

	if result.Success {
		c.cache.Set(ctx, key, result, c.cfg.CacheTTL)
	}
	return result, nil
}

// ReportCertHash asynchronously notifies the credential endpoint of a
// session's certificate fingerprint (§4.8), best-effort.
func (c *Coordinator) ReportCertHash(username, certHash string) {
	if c.cfg.CertReportEndpoint == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TransportTimeout)
		defer cancel()

		body, _ := json.Marshal(map[string]string{"username": username, "cert_hash": certHash})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CertReportEndpoint, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.client.Do(req)
		if err != nil {
			return
		}
		resp.Body.Close()
	}()
}

func (c *Coordinator) callEndpoint(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("auth: credential endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("auth: reading credential endpoint response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Result{Success: false, Reject: RejectWrongUserPW}, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("auth: credential endpoint returned status %d", resp.StatusCode)
	}

	return c.parseResult(body)
}

func (c *Coordinator) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	switch c.cfg.ContentType {
	case ContentTypeForm:
		form := url.Values{}
		form.Set("username", req.Username)
		form.Set("password", req.Password)
		for _, t := range req.Tokens {
			form.Add("tokens", t)
		}
		form.Set("cert_hash", req.Client.CertHash)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return httpReq, nil
	default:
		payload := map[string]interface{}{
			"username":  req.Username,
			"password":  req.Password,
			"tokens":    req.Tokens,
			"cert_hash": req.Client.CertHash,
			"ip":        req.Client.IP,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	}
}

func (c *Coordinator) parseResult(body []byte) (*Result, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("auth: decoding credential endpoint response: %w", err)
	}

	result := &Result{Success: true, Reject: RejectNone}
	if v, ok := raw[c.cfg.Fields.UserID]; ok {
		result.UserID = int32(toFloat(v))
	}
	if v, ok := raw[c.cfg.Fields.Username].(string); ok {
		result.Username = v
	}
	if v, ok := raw[c.cfg.Fields.DisplayName].(string); ok {
		result.DisplayName = v
	}
	if v, ok := raw[c.cfg.Fields.Groups].([]interface{}); ok {
		for _, g := range v {
			if s, ok := g.(string); ok {
				result.Groups = append(result.Groups, s)
			}
		}
	}
	return result, nil
}

func toFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func cacheKey(username, password string) string {
	sum := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%s:%x", username, sum)
}
