package stokercloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shopspring/decimal"
)

const (
	// DefaultBaseURL is the StokerCloud service root.
	DefaultBaseURL = "https://stokercloud.dk/"

	// DefaultCacheTTL is how long a status document is served without a new
	// request.
	DefaultCacheTTL = 10 * time.Second

	// DefaultTimeout bounds every HTTP request.
	DefaultTimeout = 5 * time.Second

	loginPath          = "v2/dataout2/login.php"
	controllerDataPath = "v2/dataout2/controllerdata2.php"
	updateValuePath    = "v2/dataout2/updatevalue.php"

	userAgent    = "stokercloud-go"
	maxBodyBytes = 4 << 20
)

// Client holds the session for one StokerCloud account.
type Client struct {
	account    string
	password   string
	baseURL    *url.URL
	httpClient *http.Client
	log        hclog.Logger

	token       string
	credentials string

	cacheTTL time.Duration
	cached   *cacheEntry
	now      func() time.Time
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	password   string
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	log        hclog.Logger
	now        func() time.Time
}

// WithPassword sets the credential sent on login, for service variants that
// require one.
func WithPassword(password string) Option {
	return func(o *clientOptions) {
		o.password = password
	}
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithHTTPClient replaces the default transport. The caller is responsible
// for setting a timeout on it.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithTimeout sets the timeout of the default transport.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.cacheTTL = ttl
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log hclog.Logger) Option {
	return func(o *clientOptions) {
		o.log = log
	}
}

// NewClient creates a client for the given account. No request is made
// until the first call that needs one.
func NewClient(account string, opts ...Option) (*Client, error) {
	if account == "" {
		return nil, errors.New("stokercloud: account name must be set")
	}

	o := clientOptions{
		baseURL:  DefaultBaseURL,
		cacheTTL: DefaultCacheTTL,
		log:      hclog.NewNullLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	base, err := url.Parse(o.baseURL)
	if err != nil {
		return nil, fmt.Errorf("stokercloud: invalid base URL %q: %w", o.baseURL, err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("stokercloud: base URL %q is not absolute", o.baseURL)
	}

	return &Client{
		account:    account,
		password:   o.password,
		baseURL:    base,
		httpClient: o.httpClient,
		log:        o.log,
		cacheTTL:   o.cacheTTL,
		now:        o.now,
	}, nil
}

// Account returns the account name the client logs in with.
func (c *Client) Account() string {
	return c.account
}

// Credentials returns the access level reported by the last login, such as
// "readonly".
func (c *Client) Credentials() string {
	return c.credentials
}

// Authenticate logs in and stores a fresh token, replacing any previous one.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	params := url.Values{"user": {c.account}}
	if c.password != "" {
		params.Set("password", c.password)
	}

	doc, err := c.get(ctx, "login", loginPath, params)
	if err != nil {
		return "", &AuthenticationError{Account: c.account, Err: err}
	}

	token := doc.Get("token")
	if token.String() == "" {
		return "", &AuthenticationError{Account: c.account, Err: &MissingFieldError{Path: "token"}}
	}

	c.token = token.String()
	c.credentials = doc.Get("credentials").String()
	c.log.Debug("authenticated", "account", c.account, "credentials", c.credentials)

	return c.token, nil
}

// Request issues an authenticated GET for path, relative to the base URL.
//
// When no token is held, or the service rejects the current one, the client
// logs in once and retries once. A rejection of the retried request is
// returned as an *AuthenticationError.
func (c *Client) Request(ctx context.Context, path string, params url.Values) (Document, error) {
	doc, err := c.requestWithToken(ctx, path, params)
	if !errors.Is(err, errTokenInvalid) {
		return doc, err
	}

	if _, err := c.Authenticate(ctx); err != nil {
		return Document{}, err
	}

	doc, err = c.requestWithToken(ctx, path, params)
	if errors.Is(err, errTokenInvalid) {
		return Document{}, &AuthenticationError{Account: c.account, Err: err}
	}
	return doc, err
}

// UpdateValue writes one controller setting, identified by menu and name, and
// returns the value the service accepted.
func (c *Client) UpdateValue(ctx context.Context, menu, name string, value decimal.Decimal) (decimal.Decimal, error) {
	doc, err := c.Request(ctx, updateValuePath, url.Values{
		"menu":  {menu},
		"name":  {name},
		"value": {value.String()},
	})
	if err != nil {
		return decimal.Zero, err
	}

	accepted := doc.Get("value")
	if !accepted.Exists() {
		return decimal.Zero, &MissingFieldError{Path: "value"}
	}

	v, err := decimal.NewFromString(accepted.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("stokercloud: parse accepted value for %s/%s: %w", menu, name, err)
	}
	return v, nil
}

func (c *Client) requestWithToken(ctx context.Context, path string, params url.Values) (Document, error) {
	if c.token == "" {
		return Document{}, errTokenInvalid
	}

	q := make(url.Values, len(params)+1)
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Set("token", c.token)

	doc, err := c.get(ctx, path, path, q)
	if errors.Is(err, errTokenInvalid) {
		c.token = ""
	}
	return doc, err
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values) (Document, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return Document{}, fmt.Errorf("stokercloud: invalid path %q: %w", path, err)
	}
	u := c.baseURL.ResolveReference(ref)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Document{}, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.log.IsTrace() {
		c.log.Trace("request", "url", redactToken(u))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Document{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Document{}, errTokenInvalid
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Document{}, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Document{}, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	doc, err := ParseDocument(body)
	if err != nil {
		return Document{}, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return doc, nil
}

func redactToken(u *url.URL) string {
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
	}
	if q.Has("password") {
		q.Set("password", "REDACTED")
	}
	r := *u
	r.RawQuery = q.Encode()
	return r.String()
}
