// Package panel drives the file manager of a Plesk-style web control panel
// by replaying the requests its web UI makes.
//
// A Session must be started before use. The server keeps one "current
// directory" per login, so a Session runs one operation at a time; each
// operation that names bare files first moves the server to their directory
// and checks that the move landed where it was asked to.
package panel

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"

	"pleskfm/markup"
	"pleskfm/transfer"
)

// TokenField is the form field carrying the anti-forgery token.
const TokenField = markup.TokenMetaName

const (
	loginPath   = "login_up.php3"
	landingPath = "smb/"
	fmPath      = "smb/file-manager/"

	userAgent = "pleskfm/1.0"

	// maxBody bounds responses that are read whole: JSON envelopes and
	// HTML pages, never file contents.
	maxBody = 4 << 20
)

// Config holds everything needed to open a Session.
type Config struct {
	BaseURL            string
	Username           string
	Password           string
	InsecureSkipVerify bool

	// OnProgress, when set, receives progress of uploads and downloads.
	OnProgress transfer.ProgressFunc

	Logger *slog.Logger

	// HTTPClient replaces the client built from the fields above.
	HTTPClient *http.Client
}

// Session is an authenticated, token-bound connection to the panel.
type Session struct {
	cfg    Config
	base   *url.URL
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex // one operation at a time; the server's current directory is shared state
	token string
	// cwd is the directory the server last reported as current; "" when unknown.
	cwd string
}

// New prepares a Session. No request is made until Start.
func New(cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("panel: base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("panel: parse base url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("panel: base url %q must be absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	client := cfg.HTTPClient
	if client == nil {
		client, err = newHTTPClient(cfg.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		cfg:    cfg,
		base:   base,
		client: client,
		logger: logger.With("module", "panel"),
	}, nil
}

func newHTTPClient(insecure bool) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("panel: cookie jar: %w", err)
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: tr, Jar: jar}, nil
}

// Start logs in when credentials are configured and fetches the
// anti-forgery token. It must succeed before any other call.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return ErrAlreadyStarted
	}
	if s.cfg.InsecureSkipVerify {
		s.logger.Warn("TLS certificate verification disabled")
	}

	if s.cfg.Username != "" {
		if err := s.login(ctx); err != nil {
			return err
		}
	}

	resp, err := s.do(ctx, http.MethodGet, landingPath, nil, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	token, ok := markup.ExtractToken(io.LimitReader(resp.Body, maxBody))
	if !ok || token == "" {
		return ErrNoToken
	}
	s.token = token
	s.cwd = "/"
	s.logger.Debug("session started", "base", s.base.String())
	return nil
}

func (s *Session) login(ctx context.Context) error {
	f := form{}
	f.add("login_name", s.cfg.Username)
	f.add("passwd", s.cfg.Password)
	f.add("locale_id", "default")

	raw, err := s.call(ctx, http.MethodPost, loginPath, nil, f)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if msg := markup.ExtractError(bytes.NewReader(raw.Body)); msg != "" {
		return &LoginError{User: s.cfg.Username, Message: msg}
	}
	if !raw.ok() {
		return &LoginError{User: s.cfg.Username, Message: httpStatus(raw)}
	}
	return nil
}

// Close releases idle connections. The Session cannot be used afterwards.
func (s *Session) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Started reports whether Start has succeeded.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

func (s *Session) ready() error {
	if s.token == "" {
		return ErrNotStarted
	}
	return nil
}

// form is an ordered list of fields; the panel reads the file selection
// positionally, so field order on the wire follows insertion order.
type form []formField

type formField struct {
	key, value string
}

func (f *form) add(key, value string) {
	*f = append(*f, formField{key, value})
}

func (f form) encode() string {
	var b strings.Builder
	for i, kv := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.value))
	}
	return b.String()
}

// selectionForm builds the body of a mutating request: token first, then
// ids[0..n) in caller order, then the named fields.
func (s *Session) selectionForm(names []string, fields ...string) form {
	f := form{{TokenField, s.token}}
	for i, name := range names {
		f.add("ids["+strconv.Itoa(i)+"]", name)
	}
	for i := 0; i+1 < len(fields); i += 2 {
		f.add(fields[i], fields[i+1])
	}
	return f
}

func (s *Session) endpoint(p string, query url.Values) string {
	u := s.base.ResolveReference(&url.URL{Path: p})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do issues one request. The caller owns resp.Body.
func (s *Session) do(ctx context.Context, method, p string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint(p, query), body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, p, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, p, err)
	}
	s.logger.Debug("request", "method", method, "path", p, "query", query.Encode(), "status", resp.StatusCode)
	return resp, nil
}

// call issues a request whose response is small enough to read whole.
func (s *Session) call(ctx context.Context, method, p string, query url.Values, f form) (Raw, error) {
	var (
		body        io.Reader
		contentType string
	)
	if f != nil {
		body = strings.NewReader(f.encode())
		contentType = "application/x-www-form-urlencoded"
	}

	resp, err := s.do(ctx, method, p, query, body, contentType)
	if err != nil {
		return Raw{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Raw{}, fmt.Errorf("%s %s: read response: %w", method, p, err)
	}
	s.logger.Debug("response", "path", p, "content-type", resp.Header.Get("Content-Type"), "body", string(b))
	return Raw{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

// submit posts a file-manager form and interprets the answer.
func (s *Session) submit(ctx context.Context, op, endpoint string, query url.Values, f form, conv Convention) (Result, error) {
	raw, err := s.call(ctx, http.MethodPost, fmPath+endpoint, query, f)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	res := Interpret(raw, conv)
	return res, res.Err(op)
}
