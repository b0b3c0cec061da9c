package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/internal/auth"
	"github.com/slotclaim/slotclaim/internal/prolific"
	"github.com/slotclaim/slotclaim/pkg/model"
)

const (
	loginPath = "/auth/accounts/login/"
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// ErrLoginFailed means the login form was rejected.
var ErrLoginFailed = errors.New("failed to log in to your account")

// Session is what the loop needs to start: a credential, the OpenID client
// id used to renew it, and the cookies backing both.
type Session struct {
	Credential auth.Credential
	ClientID   string
	Cookies    model.Cookies
}

// Acquirer produces a logged-in Session for an account.
type Acquirer interface {
	Acquire(ctx context.Context, email, password string) (*Session, error)
}

// Renewer turns session cookies into a bearer credential.
type Renewer interface {
	RenewWithCookies(ctx context.Context, clientID string, cookies model.Cookies) (auth.Credential, error)
}

// AcquirerOptions configures an HTTPAcquirer.
type AcquirerOptions struct {
	APIBaseURL string
	AppBaseURL string
	ClientID   string // discovered from the app page when empty
	Timeout    time.Duration
}

// HTTPAcquirer logs in with a plain HTTP form post instead of driving a browser.
type HTTPAcquirer struct {
	logger  *zap.Logger
	http    *resty.Client
	jar     http.CookieJar
	store   CookieStore
	renewer Renewer
	apiBase *url.URL
	appBase *url.URL
	opts    AcquirerOptions
}

var _ Acquirer = (*HTTPAcquirer)(nil)

// NewHTTPAcquirer builds an acquirer on rt, which should be the same
// transport (proxy, browser fingerprint) the API client uses.
func NewHTTPAcquirer(logger *zap.Logger, rt http.RoundTripper, store CookieStore, renewer Renewer, opts AcquirerOptions) (*HTTPAcquirer, error) {
	apiBase, err := url.Parse(strings.TrimRight(opts.APIBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	appBase, err := url.Parse(strings.TrimRight(opts.AppBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid app base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New()
	if rt != nil {
		client.SetTransport(rt)
	}
	client.SetHeader("User-Agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(apiBase.Hostname(), appBase.Hostname()))
	client.SetTimeout(opts.Timeout)

	a := &HTTPAcquirer{
		logger:  logger,
		http:    client,
		store:   store,
		renewer: renewer,
		apiBase: apiBase,
		appBase: appBase,
		opts:    opts,
	}
	if err := a.resetJar(); err != nil {
		return nil, err
	}
	return a, nil
}

// Acquire returns a live session. Stored cookies are tried first; if the
// server no longer honours them they are discarded and a fresh form login
// is performed.
func (a *HTTPAcquirer) Acquire(ctx context.Context, email, password string) (*Session, error) {
	if sess, err := a.fromStore(ctx); err != nil {
		return nil, err
	} else if sess != nil {
		return sess, nil
	}

	cookies, err := a.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := a.store.Save(ctx, cookies); err != nil {
		return nil, fmt.Errorf("save session cookies: %w", err)
	}

	clientID, err := a.clientID(ctx)
	if err != nil {
		return nil, err
	}
	cred, err := a.renewer.RenewWithCookies(ctx, clientID, cookies)
	if err != nil {
		return nil, err
	}
	a.logger.Info("session.acquired",
		zap.String("source", "login"),
		zap.Int("cookies", len(cookies)),
		zap.Stringer("credential", cred))
	return &Session{Credential: cred, ClientID: clientID, Cookies: cookies}, nil
}

// fromStore returns (nil, nil) when there is no usable stored session.
func (a *HTTPAcquirer) fromStore(ctx context.Context) (*Session, error) {
	cookies, err := a.store.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		a.logger.Warn("session.store_load_failed", zap.Error(err))
		return nil, nil
	}
	if _, ok := cookies.Triple(); !ok {
		a.logger.Info("session.stored_incomplete")
		return nil, a.store.Delete(ctx)
	}

	clientID, err := a.clientID(ctx)
	if err != nil {
		return nil, err
	}
	cred, err := a.renewer.RenewWithCookies(ctx, clientID, cookies)
	var rerr *prolific.RenewalError
	if errors.As(err, &rerr) {
		a.logger.Info("session.stored_rejected", zap.Error(err))
		return nil, a.store.Delete(ctx)
	}
	if err != nil {
		return nil, err
	}
	a.logger.Info("session.acquired",
		zap.String("source", "store"),
		zap.Stringer("credential", cred))
	return &Session{Credential: cred, ClientID: clientID, Cookies: cookies}, nil
}

// Login posts the credentials to the account login form and returns the
// cookies the server set.
func (a *HTTPAcquirer) Login(ctx context.Context, email, password string) (model.Cookies, error) {
	if err := a.resetJar(); err != nil {
		return nil, err
	}
	loginURL := a.apiBase.String() + loginPath

	res, err := a.http.R().
		SetContext(ctx).
		Get(loginURL)
	if err != nil {
		return nil, fmt.Errorf("fetch login page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}
	csrf := doc.Find("input[name=csrfmiddlewaretoken]").AttrOr("value", "")
	if csrf == "" {
		return nil, fmt.Errorf("could not find login csrf token (status %d)", res.StatusCode())
	}

	res, err = a.http.R().
		SetContext(ctx).
		SetHeader("Referer", loginURL).
		SetFormData(map[string]string{
			"csrfmiddlewaretoken": csrf,
			"username":            email,
			"password":            password,
		}).
		Post(loginURL)
	if err != nil {
		return nil, fmt.Errorf("submit login form: %w", err)
	}
	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse login response: %w", err)
	}
	if len(doc.Find("form input[name=password]").Nodes) > 0 {
		a.logger.Warn("session.login_rejected", zap.Int("status", res.StatusCode()))
		return nil, ErrLoginFailed
	}

	cookies := a.harvest()
	if _, ok := cookies.Triple(); !ok {
		a.logger.Warn("session.login_incomplete",
			zap.Int("status", res.StatusCode()),
			zap.Int("cookies", len(cookies)))
		return nil, fmt.Errorf("%w: session cookies missing after login", ErrLoginFailed)
	}
	a.logger.Info("session.logged_in", zap.Int("cookies", len(cookies)))
	return cookies, nil
}

// harvest collects the jar's cookies for both upstream origins, API first.
// The jar does not expose Domain or Path, so host-only cookies rooted at "/"
// are recorded.
func (a *HTTPAcquirer) harvest() model.Cookies {
	seen := map[string]bool{}
	var out model.Cookies
	for _, u := range []*url.URL{a.apiBase, a.appBase} {
		for _, c := range a.jar.Cookies(u) {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			out = append(out, model.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: u.Hostname(),
				Path:   "/",
				Secure: u.Scheme == "https",
			})
		}
	}
	return out
}

func (a *HTTPAcquirer) resetJar() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	a.jar = jar
	a.http.SetCookieJar(jar)
	return nil
}

func (a *HTTPAcquirer) clientID(ctx context.Context) (string, error) {
	if a.opts.ClientID != "" {
		return a.opts.ClientID, nil
	}
	id, err := a.DiscoverClientID(ctx)
	if err != nil {
		return "", err
	}
	a.opts.ClientID = id
	return id, nil
}

var authorizeURLPattern = regexp.MustCompile(`[^\s"'<>()]*openid/authorize\?[^\s"'<>()]+`)

// DiscoverClientID scans the web app's landing page for an OpenID authorize
// URL and returns its client_id.
func (a *HTTPAcquirer) DiscoverClientID(ctx context.Context) (string, error) {
	res, err := a.http.R().
		SetContext(ctx).
		Get(a.appBase.String() + "/")
	if err != nil {
		return "", fmt.Errorf("fetch app page: %w", err)
	}
	body := res.Body()

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err == nil {
		var found string
		doc.Find(`[href*="openid/authorize"], [src*="openid/authorize"], [content*="openid/authorize"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			for _, attr := range []string{"href", "src", "content"} {
				if id := clientIDFromURL(s.AttrOr(attr, "")); id != "" {
					found = id
					return false
				}
			}
			return true
		})
		if found != "" {
			a.logger.Info("session.client_id_discovered", zap.String("client_id", found))
			return found, nil
		}
	}

	for _, m := range authorizeURLPattern.FindAll(body, -1) {
		if id := clientIDFromURL(html.UnescapeString(string(m))); id != "" {
			a.logger.Info("session.client_id_discovered", zap.String("client_id", id))
			return id, nil
		}
	}
	return "", fmt.Errorf("no openid client id found on %s (set CLIENT_ID)", a.appBase)
}

func clientIDFromURL(raw string) string {
	_, query, ok := strings.Cut(raw, "?")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return q.Get("client_id")
}
