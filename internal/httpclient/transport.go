package httpclient

import (
	"net/http"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
)

// TransportOptions configures the shared outbound transport.
type TransportOptions struct {
	// Proxy routes every request through an HTTP proxy. Nil means a direct
	// connection; environment proxy variables are ignored either way.
	Proxy *url.URL
	// BrowserFingerprint wraps the transport so its TLS handshake and default
	// headers look like a desktop browser. Explicit request headers win.
	BrowserFingerprint bool
}

// NewTransport builds the round tripper shared by the API client and the session acquirer.
func NewTransport(opts TransportOptions) http.RoundTripper {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	if opts.Proxy != nil {
		tr.Proxy = http.ProxyURL(opts.Proxy)
	}
	if !opts.BrowserFingerprint {
		return tr
	}
	return cloudflarebp.AddCloudFlareByPass(tr)
}

// NewClient returns an http.Client that never follows redirects. Upstream
// redirects carry data (the renewal token lives in the Location header) and
// are surfaced to the caller as plain 3xx responses.
func NewClient(rt http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
