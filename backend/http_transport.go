package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-campus"
)

const (
	authPath     = "/auth/v1"
	restPath     = "/rest/v1"
	profileTable = "profiles"
)

// HTTPConfig configures HTTPTransport.
type HTTPConfig struct {
	// URL is the service base URL, e.g. https://project.supabase.co
	URL string
	// AnonKey is the public API key sent with every request.
	AnonKey    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Configured reports whether both URL and key are present.
func (c HTTPConfig) Configured() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.AnonKey) != ""
}

// HTTPTransport implements Transport against GoTrue and PostgREST.
type HTTPTransport struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     campus.Logger
}

// NewHTTPTransport creates a transport for cfg.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	_, logger := campus.ResolveLogger("backend.transport", nil, nil)

	return &HTTPTransport{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		anonKey:    strings.TrimSpace(cfg.AnonKey),
		httpClient: client,
		logger:     logger,
	}
}

// WithLogger sets the transport logger.
func (t *HTTPTransport) WithLogger(logger campus.Logger) *HTTPTransport {
	_, t.logger = campus.ResolveLogger("backend.transport", nil, logger)
	return t
}

// WithLoggerProvider resolves the transport logger from provider.
func (t *HTTPTransport) WithLoggerProvider(provider campus.LoggerProvider) *HTTPTransport {
	_, t.logger = campus.ResolveLogger("backend.transport", provider, t.logger)
	return t
}

func (t *HTTPTransport) PasswordGrant(ctx context.Context, email, password string) (*TokenResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var tok TokenResponse
	if err := t.do(ctx, OpPasswordGrant, http.MethodPost, t.authURL("/token", url.Values{"grant_type": {"password"}}), "", body, &tok, nil); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (t *HTTPTransport) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var tok TokenResponse
	if err := t.do(ctx, OpRefreshGrant, http.MethodPost, t.authURL("/token", url.Values{"grant_type": {"refresh_token"}}), "", body, &tok, nil); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (t *HTTPTransport) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*User, error) {
	body := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	// signup answers with a bare user while confirmation is pending and with
	// a session (user nested) when auto confirm is on
	var raw struct {
		User
		Session *User `json:"user"`
	}
	if err := t.do(ctx, OpSignUp, http.MethodPost, t.authURL("/signup", nil), "", body, &raw, nil); err != nil {
		return nil, err
	}
	if raw.ID == "" && raw.Session != nil {
		return raw.Session, nil
	}
	return &raw.User, nil
}

func (t *HTTPTransport) Logout(ctx context.Context, accessToken string) error {
	return t.do(ctx, OpLogout, http.MethodPost, t.authURL("/logout", nil), accessToken, nil, nil, nil)
}

func (t *HTTPTransport) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*User, error) {
	var user User
	if err := t.do(ctx, OpUpdateUser, http.MethodPut, t.authURL("/user", nil), accessToken, attrs, &user, nil); err != nil {
		return nil, err
	}
	return &user, nil
}

func (t *HTTPTransport) FetchProfile(ctx context.Context, accessToken, userID string) (map[string]any, error) {
	query := url.Values{
		"id":     {"eq." + userID},
		"select": {"*"},
	}
	var rows []map[string]any
	if err := t.do(ctx, OpFetchProfile, http.MethodGet, t.restURL(profileTable, query), accessToken, nil, &rows, nil); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (t *HTTPTransport) PatchProfile(ctx context.Context, accessToken, userID string, fields map[string]any) error {
	query := url.Values{"id": {"eq." + userID}}
	headers := map[string]string{"Prefer": "return=minimal"}
	return t.do(ctx, OpPatchProfile, http.MethodPatch, t.restURL(profileTable, query), accessToken, fields, nil, headers)
}

func (t *HTTPTransport) authURL(path string, query url.Values) string {
	u := t.baseURL + authPath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (t *HTTPTransport) restURL(table string, query url.Values) string {
	u := t.baseURL + restPath + "/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (t *HTTPTransport) do(ctx context.Context, op, method, endpoint, accessToken string, in, out any, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &APIError{Operation: op, Message: "failed to encode request", Err: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &APIError{Operation: op, Message: "failed to build request", Err: err}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", t.anonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	bearer := accessToken
	if bearer == "" {
		bearer = t.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Warn("backend request failed", "operation", op, "error", err)
		return transportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(op, resp.StatusCode, raw)
		t.logger.Debug("backend refused request", "operation", op, "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{
			Operation: op,
			Status:    resp.StatusCode,
			Code:      "invalid_response",
			Message:   "failed to decode response",
			Err:       err,
		}
	}
	return nil
}

// errorBody covers the GoTrue (old and new) and PostgREST error shapes.
type errorBody struct {
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	ErrorCode        string          `json:"error_code"`
	Code             json.RawMessage `json:"code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
}

func decodeAPIError(op string, status int, raw []byte) *APIError {
	apiErr := &APIError{Operation: op, Status: status}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	switch {
	case body.ErrorCode != "":
		apiErr.Code = body.ErrorCode
	case body.Error != "":
		apiErr.Code = body.Error
	default:
		var code string
		if json.Unmarshal(body.Code, &code) == nil {
			apiErr.Code = code
		}
	}

	for _, m := range []string{body.ErrorDescription, body.Msg, body.Message} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	return apiErr
}
