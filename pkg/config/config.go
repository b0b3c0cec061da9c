package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for slotclaim.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string

	// Polling
	PollInterval   time.Duration
	Proxy          string // "host:port", empty means direct connection
	RequestTimeout time.Duration
	HTTPRetryMax   int
	RateRPS        int
	RateBurst      int

	// Upstream
	APIBaseURL string
	AppBaseURL string
	ClientID   string // OpenID client id; discovered from the app page when empty

	// Credential store
	ProfileSource     string // "file" or "aws"
	ProfilePath       string
	ProfileSecretName string
	AWSRegion         string
	ProfileCacheTTL   time.Duration

	// Cookie persistence
	CookieStore string // "file" or "redis"
	CookiePath  string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CookieTTL   time.Duration

	// Notification
	NATSURL       string
	NATSSubject   string
	NATSStream    string
	NotifyBell    bool
	NotifyCommand string

	// Ops server (0 disables)
	OpsPort int

	// Driver provisioning
	DriverEnsure      bool
	DriverDir         string
	DriverName        string
	DriverVersionURL  string
	DriverDownloadURL string // %s is replaced by the version

	// Success follow-up
	ConfirmLoginOnSuccess bool
	PauseOnSuccess        bool
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:           GetEnv("SERVICE_NAME", "slotclaim"),
		Env:                   GetEnv("ENV", "dev"),
		LogLevel:              GetEnv("LOG_LEVEL", "info"),
		PollInterval:          GetEnvSeconds("POLL_INTERVAL", 30*time.Second),
		Proxy:                 GetEnv("PROXY", ""),
		RequestTimeout:        GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		HTTPRetryMax:          GetEnvInt("HTTP_RETRY_MAX", 0),
		RateRPS:               GetEnvInt("RATE_RPS", 2),
		RateBurst:             GetEnvInt("RATE_BURST", 4),
		APIBaseURL:            GetEnv("API_BASE_URL", "https://internal-api.prolific.com"),
		AppBaseURL:            GetEnv("APP_BASE_URL", "https://app.prolific.com"),
		ClientID:              GetEnv("CLIENT_ID", ""),
		ProfileSource:         GetEnv("PROFILE_SOURCE", "file"),
		ProfilePath:           GetEnv("PROFILE_PATH", "./user.json"),
		ProfileSecretName:     GetEnv("PROFILE_SECRET_NAME", "slotclaim/profile"),
		AWSRegion:             GetEnv("AWS_REGION", "us-east-2"),
		ProfileCacheTTL:       GetEnvDuration("PROFILE_CACHE_TTL", 1*time.Hour),
		CookieStore:           GetEnv("COOKIE_STORE", "file"),
		CookiePath:            GetEnv("COOKIE_PATH", "./cookies.json"),
		RedisAddr:             GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:               GetEnvInt("REDIS_DB", 0),
		RedisPass:             GetEnv("REDIS_PASS", ""),
		CookieTTL:             GetEnvDuration("COOKIE_TTL", 14*24*time.Hour),
		NATSURL:               GetEnv("NATS_URL", ""),
		NATSSubject:           GetEnv("NATS_SUBJECT", "evt.study.reserved.v1"),
		NATSStream:            GetEnv("NATS_STREAM", "SLOTCLAIM_EVENTS"),
		NotifyBell:            GetEnvBool("NOTIFY_BELL", true),
		NotifyCommand:         GetEnv("NOTIFY_COMMAND", ""),
		OpsPort:               GetEnvInt("OPS_PORT", 0),
		DriverEnsure:          GetEnvBool("DRIVER_ENSURE", false),
		DriverDir:             GetEnv("DRIVER_DIR", "."),
		DriverName:            GetEnv("DRIVER_NAME", "chromedriver"),
		DriverVersionURL:      GetEnv("DRIVER_VERSION_URL", "https://chromedriver.storage.googleapis.com/LATEST_RELEASE"),
		DriverDownloadURL:     GetEnv("DRIVER_DOWNLOAD_URL", "https://chromedriver.storage.googleapis.com/%s/chromedriver_linux64.zip"),
		ConfirmLoginOnSuccess: GetEnvBool("CONFIRM_LOGIN_ON_SUCCESS", true),
		PauseOnSuccess:        GetEnvBool("PAUSE_ON_SUCCESS", true),
	}
}

// ShortInterval is the backoff used after a contended (full) study: a third of the poll interval.
func (c *Config) ShortInterval() time.Duration {
	return c.PollInterval / 3
}
