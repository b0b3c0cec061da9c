package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/internal/api"
	"github.com/slotclaim/slotclaim/internal/auth"
	"github.com/slotclaim/slotclaim/internal/driver"
	"github.com/slotclaim/slotclaim/internal/httpclient"
	"github.com/slotclaim/slotclaim/internal/notify"
	"github.com/slotclaim/slotclaim/internal/profile"
	"github.com/slotclaim/slotclaim/internal/prolific"
	"github.com/slotclaim/slotclaim/internal/publisher"
	"github.com/slotclaim/slotclaim/internal/rate"
	"github.com/slotclaim/slotclaim/internal/secrets"
	"github.com/slotclaim/slotclaim/internal/session"
	"github.com/slotclaim/slotclaim/internal/store"
	"github.com/slotclaim/slotclaim/pkg/config"
	pkgsecrets "github.com/slotclaim/slotclaim/pkg/secrets"
	"github.com/slotclaim/slotclaim/pkg/utils"
)

// runtime is the object graph shared by the subcommands.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	proxy     auth.ProxyConfig
	transport http.RoundTripper
	exec      *httpclient.Executor
	tokens    *auth.TokenManager
	kv        *store.RedisStore

	// set by bind
	cookies  session.CookieStore
	client   *prolific.Client
	acquirer session.Acquirer
}

func newRuntime(cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	proxy, err := auth.ParseProxy(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	if proxy.Enabled() {
		logger.Info("slotclaim.proxy", zap.String("proxy", utils.MaskProxy(proxy.String())))
	}

	transport := httpclient.NewTransport(httpclient.TransportOptions{
		Proxy:              proxy.URL(),
		BrowserFingerprint: true,
	})
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateRPS,
		Burst:             cfg.RateBurst,
	}).
		// Only polling is budgeted; a reservation must never queue behind it.
		Set(prolific.OpReserveStudy, rate.Config{}).
		Set(prolific.OpRenewToken, rate.Config{})
	exec := httpclient.New(
		logger.Named("http"),
		rateMgr,
		httpclient.NewClient(transport, cfg.RequestTimeout),
		cfg.HTTPRetryMax,
		"prolific",
	)

	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		proxy:     proxy,
		transport: transport,
		exec:      exec,
		tokens:    auth.NewTokenManager(logger.Named("auth"), proxy),
	}

	switch cfg.CookieStore {
	case "file":
	case "redis":
		kv, err := store.NewRedis(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, logger.Named("store"))
		if err != nil {
			return nil, err
		}
		rt.kv = kv
	default:
		return nil, fmt.Errorf("unknown COOKIE_STORE %q (want file or redis)", cfg.CookieStore)
	}
	return rt, nil
}

// bind wires the per-user parts: cookie storage, API client and acquirer.
func (rt *runtime) bind(u profile.User) error {
	if rt.kv != nil {
		rt.cookies = session.NewRedisCookieStore(rt.kv, strings.ToLower(u.Email), rt.cfg.CookieTTL)
	} else {
		rt.cookies = session.NewFileCookieStore(rt.cfg.CookiePath)
	}

	rt.client = prolific.NewClient(rt.logger.Named("prolific"), rt.exec, rt.tokens, rt.cookies, prolific.Options{
		APIBaseURL: rt.cfg.APIBaseURL,
		AppBaseURL: rt.cfg.AppBaseURL,
	})

	acq, err := session.NewHTTPAcquirer(rt.logger.Named("session"), rt.transport, rt.cookies, rt.client, session.AcquirerOptions{
		APIBaseURL: rt.cfg.APIBaseURL,
		AppBaseURL: rt.cfg.AppBaseURL,
		ClientID:   rt.cfg.ClientID,
		Timeout:    rt.cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}
	rt.acquirer = acq
	return nil
}

// healthDeps lists the dependencies /health probes.
func (rt *runtime) healthDeps() map[string]api.HealthChecker {
	deps := map[string]api.HealthChecker{}
	if rt.kv != nil {
		deps["redis"] = rt.kv
	}
	return deps
}

func (rt *runtime) Close() {
	if rt.kv != nil {
		if err := rt.kv.Close(); err != nil {
			rt.logger.Warn("store.close_failed", zap.Error(err))
		}
	}
}

func (rt *runtime) provisioner() *driver.Provisioner {
	return driver.NewProvisioner(rt.logger.Named("driver"), rt.transport, driver.Options{
		Dir:         rt.cfg.DriverDir,
		Name:        rt.cfg.DriverName,
		VersionURL:  rt.cfg.DriverVersionURL,
		DownloadURL: rt.cfg.DriverDownloadURL,
	})
}

// profileSource picks where the user profile comes from.
func profileSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (profile.Source, error) {
	switch cfg.ProfileSource {
	case "file":
		return profile.NewFileStore(cfg.ProfilePath), nil
	case "aws":
		provider, err := pkgsecrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		resolver := secrets.NewAWSResolver(logger.Named("secrets"), provider, pkgsecrets.NewCache[profile.User](cfg.ProfileCacheTTL))
		return profile.NewAWSStore(resolver, cfg.ProfileSecretName), nil
	default:
		return nil, fmt.Errorf("unknown PROFILE_SOURCE %q (want file or aws)", cfg.ProfileSource)
	}
}

// loadUser reads the profile, prompting for a new one when the file source is empty.
func loadUser(ctx context.Context, cfg *config.Config, logger *zap.Logger) (profile.User, error) {
	src, err := profileSource(ctx, cfg, logger)
	if err != nil {
		return profile.User{}, err
	}
	if fs, ok := src.(*profile.FileStore); ok {
		u, _, err := profile.CreateOrLoad(ctx, logger.Named("profile"), fs, profile.NewTermPrompter(os.Stdin, os.Stdout))
		return u, err
	}
	return src.Load(ctx)
}

// notifiers builds the success notifiers. The returned Command, if any, must
// be waited on before exit so a sound is not cut off.
func notifiers(cfg *config.Config, logger *zap.Logger) (notify.Multi, *notify.Command, func()) {
	var (
		out     notify.Multi
		cmd     *notify.Command
		cleanup = func() {}
	)
	if cfg.NotifyBell {
		out = append(out, notify.NewBell(os.Stdout))
	}
	if cfg.NotifyCommand != "" {
		cmd = notify.NewCommand(logger.Named("notify"), cfg.NotifyCommand)
		out = append(out, cmd)
	}
	if cfg.NATSURL != "" {
		pub, err := publisher.Connect(cfg.NATSURL, cfg.ServiceName, logger.Named("publisher"))
		if err != nil {
			logger.Warn("publisher.connect_failed", zap.Error(err))
			return out, cmd, cleanup
		}
		if err := pub.EnsureStream(cfg.NATSStream, cfg.NATSSubject); err != nil {
			logger.Warn("publisher.stream_failed", zap.Error(err))
		}
		out = append(out, notify.NewEventNotifier(pub, cfg.NATSSubject))
		cleanup = pub.Close
	}
	return out, cmd, cleanup
}
