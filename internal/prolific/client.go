package prolific

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/internal/auth"
	"github.com/slotclaim/slotclaim/internal/httpclient"
	"github.com/slotclaim/slotclaim/pkg/model"
)

const (
	studiesPath   = "/api/v1/participant/studies"
	reservePath   = "/api/v1/submissions/reserve/"
	authorizePath = "/openid/authorize"
)

// CredentialSource supplies the bearer credential attached to each request.
type CredentialSource interface {
	Credential() auth.Credential
}

// CookieSource supplies the harvested browser cookies used for token renewal.
type CookieSource interface {
	Load(ctx context.Context) (model.Cookies, error)
}

// Options holds the upstream base URLs.
type Options struct {
	APIBaseURL string // e.g. https://internal-api.prolific.com
	AppBaseURL string // e.g. https://app.prolific.com
}

// Client issues the three upstream operations. It owns no state beyond the
// injected credential and cookie sources.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	tokens  CredentialSource
	cookies CookieSource
	apiBase string
	appBase string
}

// NewClient constructs an API client. exec must wrap an http.Client that does not follow redirects.
func NewClient(logger *zap.Logger, exec *httpclient.Executor, tokens CredentialSource, cookies CookieSource, opts Options) *Client {
	return &Client{
		logger:  logger,
		exec:    exec,
		tokens:  tokens,
		cookies: cookies,
		apiBase: strings.TrimRight(opts.APIBaseURL, "/"),
		appBase: strings.TrimRight(opts.AppBaseURL, "/"),
	}
}

// ListStudies fetches the studies currently open to the participant, in server order.
// GET /api/v1/participant/studies
func (c *Client) ListStudies(ctx context.Context) (APIResult[[]model.StudySummary], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+studiesPath, nil)
	if err != nil {
		return APIResult[[]model.StudySummary]{}, err
	}
	applyProfile(req, OpListStudies, c.appBase)
	c.authorize(req)

	resp, err := c.exec.Do(ctx, req, OpListStudies)
	if err != nil {
		return APIResult[[]model.StudySummary]{}, &TransportError{Op: OpListStudies, Err: err}
	}

	studies := []model.StudySummary{}
	if resp.Status == http.StatusOK {
		var body studiesResponse
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			c.logger.Warn("prolific.decode_failed",
				zap.String("op", OpListStudies),
				zap.Int("status", resp.Status),
				zap.String("body", truncate(resp.Body)),
				zap.Error(err))
			return APIResult[[]model.StudySummary]{Status: resp.Status},
				&ProtocolError{Op: OpListStudies, Status: resp.Status, Body: truncate(resp.Body), Err: err}
		}
		if body.Results != nil {
			studies = body.Results
		}
	}

	return APIResult[[]model.StudySummary]{Data: studies, Status: resp.Status}, nil
}

// ReserveStudy tries to claim a slot in studyID for participantID.
// POST /api/v1/submissions/reserve/
// The raw payload is returned untouched; interpreting the status is the caller's job.
func (c *Client) ReserveStudy(ctx context.Context, studyID, participantID string) (APIResult[json.RawMessage], error) {
	data, err := json.Marshal(reserveRequest{StudyID: studyID, ParticipantID: participantID})
	if err != nil {
		return APIResult[json.RawMessage]{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+reservePath, bytes.NewReader(data))
	if err != nil {
		return APIResult[json.RawMessage]{}, err
	}
	applyProfile(req, OpReserveStudy, c.appBase)
	c.authorize(req)

	resp, err := c.exec.Do(ctx, req, OpReserveStudy)
	if err != nil {
		return APIResult[json.RawMessage]{}, &TransportError{Op: OpReserveStudy, Err: err}
	}

	var payload json.RawMessage
	if json.Valid(resp.Body) {
		payload = json.RawMessage(resp.Body)
	}
	return APIResult[json.RawMessage]{Data: payload, Status: resp.Status}, nil
}

// RenewToken derives a fresh bearer credential from the stored session cookies.
func (c *Client) RenewToken(ctx context.Context, clientID string) (auth.Credential, error) {
	if c.cookies == nil {
		return "", &RenewalError{Reason: "no cookie source configured"}
	}
	cookies, err := c.cookies.Load(ctx)
	if err != nil {
		return "", &RenewalError{Reason: "load session cookies", Err: err}
	}
	return c.RenewWithCookies(ctx, clientID, cookies)
}

// RenewWithCookies performs the silent authorization round trip:
// GET /openid/authorize with prompt=none, redirects not followed, and
// access_token read from the Location fragment.
func (c *Client) RenewWithCookies(ctx context.Context, clientID string, cookies model.Cookies) (auth.Credential, error) {
	triple, ok := cookies.Triple()
	if !ok {
		return "", &RenewalError{Reason: "session cookies incomplete (need sessionid, csrftoken, sp)"}
	}
	if clientID == "" {
		return "", &RenewalError{Reason: "empty client id"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authorizeURL(clientID), nil)
	if err != nil {
		return "", &RenewalError{Reason: "build request", Err: err}
	}
	applyProfile(req, OpRenewToken, c.appBase)
	req.Header.Set("Cookie", fmt.Sprintf("sessionid=%s; csrftoken=%s; sp=%s", triple.SessionID, triple.CSRFToken, triple.SP))

	resp, err := c.exec.Do(ctx, req, OpRenewToken)
	if err != nil {
		return "", &RenewalError{Reason: "authorize request failed", Err: &TransportError{Op: OpRenewToken, Err: err}}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", &RenewalError{Status: resp.Status, Reason: "no redirect location"}
	}
	token, err := ParseAccessToken(location)
	if err != nil {
		return "", &RenewalError{Status: resp.Status, Reason: "bad redirect location", Err: err}
	}

	cred := auth.NewBearer(token)
	c.logger.Debug("prolific.token_renewed",
		zap.Int("status", resp.Status),
		zap.Stringer("credential", cred))
	return cred, nil
}

// authorizeURL builds the silent-renew authorization URL. Spaces are encoded
// as %20 to match what the web app sends.
func (c *Client) authorizeURL(clientID string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("redirect_uri", c.appBase+"/silent-renew.html")
	q.Set("response_type", "id_token token")
	q.Set("scope", "openid profile")
	q.Set("nonce", strings.ReplaceAll(uuid.NewString(), "-", ""))
	q.Set("prompt", "none")
	q.Set("returnPath", "/")
	return c.apiBase + authorizePath + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if cred := c.tokens.Credential(); !cred.IsZero() {
		req.Header.Set("Authorization", cred.Header())
	}
}
