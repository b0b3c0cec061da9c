package claim

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/internal/auth"
	"github.com/slotclaim/slotclaim/internal/metrics"
	"github.com/slotclaim/slotclaim/internal/prolific"
	"github.com/slotclaim/slotclaim/pkg/model"
)

// API is the subset of the upstream client the loop drives.
type API interface {
	ListStudies(ctx context.Context) (prolific.APIResult[[]model.StudySummary], error)
	ReserveStudy(ctx context.Context, studyID, participantID string) (prolific.APIResult[json.RawMessage], error)
	RenewToken(ctx context.Context, clientID string) (auth.Credential, error)
}

// CredentialSink receives renewed credentials.
type CredentialSink interface {
	SetCredential(auth.Credential)
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config parameterizes one run of the loop.
type Config struct {
	Interval      time.Duration // backoff after an empty list
	ShortInterval time.Duration // backoff after a full study; defaults to Interval/3
	ParticipantID string
	ClientID      string
}

// Result describes a successful reservation.
type Result struct {
	Study      model.StudySummary
	Payload    json.RawMessage
	Iterations int
	Renewals   int
}

// Snapshot is a point-in-time view of the loop for the ops server.
type Snapshot struct {
	State          string              `json:"state"`
	StartedAt      time.Time           `json:"started_at"`
	Iterations     int                 `json:"iterations"`
	Renewals       int                 `json:"renewals"`
	LastListStatus int                 `json:"last_list_status"`
	LastPollAt     time.Time           `json:"last_poll_at"`
	Reserved       *model.StudySummary `json:"reserved,omitempty"`
	LastError      string              `json:"last_error,omitempty"`
}

// Option customizes a Loop.
type Option func(*Loop)

// WithSleeper replaces the backoff sleep, typically with a fake clock in tests.
func WithSleeper(s Sleeper) Option {
	return func(l *Loop) { l.sleep = s }
}

// Loop is the poll-reserve state machine. It runs on a single goroutine;
// only Snapshot may be called concurrently.
type Loop struct {
	logger *zap.Logger
	api    API
	tokens CredentialSink
	cfg    Config
	sleep  Sleeper

	mu   sync.RWMutex
	snap Snapshot
}

// NewLoop constructs a loop. It does not start polling until Run.
func NewLoop(logger *zap.Logger, api API, tokens CredentialSink, cfg Config, opts ...Option) *Loop {
	if cfg.ShortInterval <= 0 {
		cfg.ShortInterval = cfg.Interval / 3
	}
	l := &Loop{
		logger: logger,
		api:    api,
		tokens: tokens,
		cfg:    cfg,
		sleep:  SleepContext,
		snap:   Snapshot{State: StatePolling.String()},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run polls until a study is reserved, an unrecoverable error occurs, or ctx is
// cancelled. Recoverable signals (empty list, full study, expired session) are
// handled here and never returned.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	l.update(func(s *Snapshot) { s.StartedAt = time.Now() })

	state := StatePolling
	var (
		candidate  model.StudySummary
		wait       time.Duration
		iterations int
		renewals   int
	)

	for {
		var next State

		switch state {
		case StatePolling:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			iterations++
			res, err := l.api.ListStudies(ctx)
			if err != nil {
				return nil, l.fail(state, err)
			}
			l.logPoll(res)
			l.update(func(s *Snapshot) {
				s.Iterations = iterations
				s.LastListStatus = res.Status
				s.LastPollAt = time.Now()
			})

			switch ClassifyList(res.Status, len(res.Data)) {
			case StudiesFound:
				candidate = res.Data[0]
				next = StateReserving
			case NoStudies:
				wait = l.cfg.Interval
				next = StateBackoff
			case SessionExpired:
				next = StateRenewing
			default:
				return nil, l.fail(state, &UnexpectedStatusError{Op: prolific.OpListStudies, Status: res.Status})
			}

		case StateReserving:
			res, err := l.api.ReserveStudy(ctx, candidate.ID, l.cfg.ParticipantID)
			if err != nil {
				return nil, l.fail(state, err)
			}
			outcome := ClassifyReserve(res.Status)
			metrics.IncReservation(outcome.String())
			l.logger.Info("claim.reserve",
				zap.String("study_id", candidate.ID),
				zap.String("study", candidate.Name),
				zap.Int("status", res.Status),
				zap.Stringer("outcome", outcome))

			switch outcome {
			case Reserved:
				l.transition(state, StateSucceeded)
				study := candidate
				l.update(func(s *Snapshot) { s.Reserved = &study })
				return &Result{Study: candidate, Payload: res.Data, Iterations: iterations, Renewals: renewals}, nil
			case StudyFull:
				wait = l.cfg.ShortInterval
				next = StateBackoff
			case TokenExpired:
				next = StateRenewing
			default:
				return nil, l.fail(state, &UnexpectedStatusError{Op: prolific.OpReserveStudy, Status: res.Status, Body: string(res.Data)})
			}

		case StateRenewing:
			cred, err := l.api.RenewToken(ctx, l.cfg.ClientID)
			if err != nil {
				metrics.IncRenewal("error")
				return nil, l.fail(state, err)
			}
			l.tokens.SetCredential(cred)
			renewals++
			metrics.IncRenewal("ok")
			l.update(func(s *Snapshot) { s.Renewals = renewals })
			l.logger.Info("claim.token_renewed", zap.Int("renewals", renewals))
			next = StatePolling

		case StateBackoff:
			l.logger.Debug("claim.backoff", zap.Duration("wait", wait))
			if err := l.sleep(ctx, wait); err != nil {
				l.logger.Info("claim.stopped", zap.Error(err))
				return nil, err
			}
			next = StatePolling
		}

		l.transition(state, next)
		state = next
	}
}

// Snapshot returns a copy of the loop's observable state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

func (l *Loop) transition(from, to State) {
	metrics.IncTransition(from.String(), to.String())
	l.update(func(s *Snapshot) { s.State = to.String() })
}

func (l *Loop) fail(from State, err error) error {
	l.transition(from, StateFatal)
	l.update(func(s *Snapshot) { s.LastError = err.Error() })
	l.logger.Error("claim.fatal",
		zap.Stringer("state", from),
		zap.Error(err))
	return err
}

func (l *Loop) update(fn func(*Snapshot)) {
	l.mu.Lock()
	fn(&l.snap)
	l.mu.Unlock()
}

func (l *Loop) logPoll(res prolific.APIResult[[]model.StudySummary]) {
	studies := make([]string, 0, len(res.Data))
	for _, s := range res.Data {
		studies = append(studies, s.String())
	}
	l.logger.Info("claim.poll",
		zap.String("at", time.Now().Format("15:04")),
		zap.Int("status", res.Status),
		zap.Int("count", len(res.Data)),
		zap.Strings("studies", studies))
}
