package auth

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/pkg/utils"
)

// bearerPrefix is the scheme every Credential carries.
const bearerPrefix = "Bearer "

// Credential is a complete Authorization header value, e.g. "Bearer abc".
type Credential string

// NewBearer builds a Credential from a raw access token.
func NewBearer(accessToken string) Credential {
	return Credential(bearerPrefix + accessToken)
}

// IsZero reports whether the credential is unset.
func (c Credential) IsZero() bool {
	return c == ""
}

// String masks the token so a Credential can be logged directly.
func (c Credential) String() string {
	return utils.MaskToken(string(c))
}

// Header returns the raw Authorization header value.
func (c Credential) Header() string {
	return string(c)
}

// ProxyConfig is an optional HTTP proxy. The zero value means a direct connection.
type ProxyConfig struct {
	Host string
	Port int
}

// ParseProxy parses "host:port". An empty string yields the zero ProxyConfig.
func ParseProxy(s string) (ProxyConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ProxyConfig{}, nil
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return ProxyConfig{}, fmt.Errorf("invalid proxy %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return ProxyConfig{}, fmt.Errorf("invalid proxy port %q", portStr)
	}
	if host == "" {
		return ProxyConfig{}, fmt.Errorf("invalid proxy %q: empty host", s)
	}
	return ProxyConfig{Host: host, Port: port}, nil
}

// Enabled reports whether a proxy is configured.
func (p ProxyConfig) Enabled() bool {
	return p.Host != ""
}

// URL returns the proxy as an http URL, or nil when disabled.
func (p ProxyConfig) URL() *url.URL {
	if !p.Enabled() {
		return nil
	}
	return &url.URL{Scheme: "http", Host: net.JoinHostPort(p.Host, strconv.Itoa(p.Port))}
}

func (p ProxyConfig) String() string {
	if !p.Enabled() {
		return "direct"
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// TokenManager holds the process-wide current Credential and the immutable ProxyConfig.
// Reads and writes of the credential are atomic swaps: a request is always
// built with either the old or the new value, never a mix.
type TokenManager struct {
	logger    *zap.Logger
	proxy     ProxyConfig
	current   atomic.Pointer[Credential]
	renewals  atomic.Int64
	updatedAt atomic.Int64 // unix nanos
}

// NewTokenManager creates a TokenManager with no credential set yet.
func NewTokenManager(logger *zap.Logger, proxy ProxyConfig) *TokenManager {
	return &TokenManager{
		logger: logger,
		proxy:  proxy,
	}
}

// Credential returns the current credential, or "" if none has been set.
func (m *TokenManager) Credential() Credential {
	if c := m.current.Load(); c != nil {
		return *c
	}
	return ""
}

// HasCredential reports whether a credential has been set.
func (m *TokenManager) HasCredential() bool {
	return m.current.Load() != nil
}

// SetCredential replaces the current credential wholesale.
func (m *TokenManager) SetCredential(c Credential) {
	prev := m.current.Swap(&c)
	m.updatedAt.Store(time.Now().UnixNano())
	if prev != nil {
		m.renewals.Add(1)
	}
	m.logger.Info("auth.credential_set",
		zap.Stringer("credential", c),
		zap.Bool("replaced", prev != nil))
}

// Proxy returns the proxy configuration fixed at startup.
func (m *TokenManager) Proxy() ProxyConfig {
	return m.proxy
}

// Renewals returns how many times the credential has been replaced after the first set.
func (m *TokenManager) Renewals() int64 {
	return m.renewals.Load()
}

// UpdatedAt returns when the credential was last set, or the zero time.
func (m *TokenManager) UpdatedAt() time.Time {
	ns := m.updatedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
