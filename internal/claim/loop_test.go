package claim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/internal/auth"
	"github.com/slotclaim/slotclaim/internal/prolific"
	"github.com/slotclaim/slotclaim/pkg/model"
)

type listReply struct {
	status  int
	studies []model.StudySummary
	err     error
}

type reserveReply struct {
	status int
	body   string
	err    error
}

type renewReply struct {
	cred auth.Credential
	err  error
}

// fakeAPI replays scripted replies and records every call in order.
// Running past the end of a script fails the test.
type fakeAPI struct {
	t        *testing.T
	lists    []listReply
	reserves []reserveReply
	renews   []renewReply
	calls    []string
	reserved []string
	tokens   *auth.TokenManager
	authSeen []auth.Credential
}

func (f *fakeAPI) ListStudies(context.Context) (prolific.APIResult[[]model.StudySummary], error) {
	f.calls = append(f.calls, "list")
	if f.tokens != nil {
		f.authSeen = append(f.authSeen, f.tokens.Credential())
	}
	require.NotEmpty(f.t, f.lists, "unexpected ListStudies call")
	r := f.lists[0]
	f.lists = f.lists[1:]
	return prolific.APIResult[[]model.StudySummary]{Data: r.studies, Status: r.status}, r.err
}

func (f *fakeAPI) ReserveStudy(_ context.Context, studyID, _ string) (prolific.APIResult[json.RawMessage], error) {
	f.calls = append(f.calls, "reserve")
	f.reserved = append(f.reserved, studyID)
	require.NotEmpty(f.t, f.reserves, "unexpected ReserveStudy call")
	r := f.reserves[0]
	f.reserves = f.reserves[1:]
	var body json.RawMessage
	if r.body != "" {
		body = json.RawMessage(r.body)
	}
	return prolific.APIResult[json.RawMessage]{Data: body, Status: r.status}, r.err
}

func (f *fakeAPI) RenewToken(context.Context, string) (auth.Credential, error) {
	f.calls = append(f.calls, "renew")
	require.NotEmpty(f.t, f.renews, "unexpected RenewToken call")
	r := f.renews[0]
	f.renews = f.renews[1:]
	return r.cred, r.err
}

// fakeClock records requested sleeps without blocking.
type fakeClock struct {
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

func demoStudy() model.StudySummary {
	return model.StudySummary{ID: "S1", Name: "Demo", Reward: decimal.RequireFromString("1.5")}
}

func newTestLoop(t *testing.T, api *fakeAPI, clock *fakeClock) (*Loop, *auth.TokenManager) {
	t.Helper()
	tm := auth.NewTokenManager(zap.NewNop(), auth.ProxyConfig{})
	tm.SetCredential(auth.NewBearer("initial"))
	api.t = t
	api.tokens = tm
	l := NewLoop(zap.NewNop(), api, tm, Config{
		Interval:      30 * time.Second,
		ParticipantID: "P-1",
		ClientID:      "client-1",
	}, WithSleeper(clock.Sleep))
	return l, tm
}

// ─── Success path ─────────────────────────────────────────────────────────────

func TestRun_ReservesFirstStudy(t *testing.T) {
	api := &fakeAPI{
		lists: []listReply{{status: http.StatusOK, studies: []model.StudySummary{
			demoStudy(),
			{ID: "S2", Name: "Richer", Reward: decimal.NewFromInt(10)},
		}}},
		reserves: []reserveReply{{status: http.StatusCreated, body: `{"id":"sub-1"}`}},
	}
	clock := &fakeClock{}
	l, _ := newTestLoop(t, api, clock)

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "S1", res.Study.ID, "first entry is always the candidate")
	assert.JSONEq(t, `{"id":"sub-1"}`, string(res.Payload))
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, []string{"list", "reserve"}, api.calls)
	assert.Empty(t, clock.sleeps)

	snap := l.Snapshot()
	assert.Equal(t, "succeeded", snap.State)
	require.NotNil(t, snap.Reserved)
	assert.Equal(t, "S1", snap.Reserved.ID)
}

// ─── Empty list → full backoff ────────────────────────────────────────────────

func TestRun_EmptyListBacksOffFullInterval(t *testing.T) {
	api := &fakeAPI{
		lists: []listReply{
			{status: http.StatusOK, studies: nil},
			{status: http.StatusOK, studies: []model.StudySummary{}},
			{status: http.StatusOK, studies: []model.StudySummary{demoStudy()}},
		},
		reserves: []reserveReply{{status: http.StatusCreated}},
	}
	clock := &fakeClock{}
	l, _ := newTestLoop(t, api, clock)

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, []string{"list", "list", "list", "reserve"}, api.calls, "empty list never leads to a reservation")
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, clock.sleeps)
}

// ─── Study full → short backoff, no memory of prior attempts ─────────────────

func TestRun_StudyFullShortBackoffThenRetriesSameStudy(t *testing.T) {
	api := &fakeAPI{
		lists: []listReply{
			{status: http.StatusOK, studies: []model.StudySummary{demoStudy()}},
			{status: http.StatusOK, studies: []model.StudySummary{demoStudy()}},
		},
		reserves: []reserveReply{
			{status: http.StatusBadRequest, body: `{"error":"full"}`},
			{status: http.StatusCreated},
		},
	}
	clock := &fakeClock{}
	l, _ := newTestLoop(t, api, clock)

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "S1", res.Study.ID)
	assert.Equal(t, []string{"S1", "S1"}, api.reserved, "loop keeps no memory of earlier attempts")
	assert.Equal(t, []string{"list", "reserve", "list", "reserve"}, api.calls)
	assert.Equal(t, []time.Duration{10 * time.Second}, clock.sleeps, "short backoff is a third of the interval")
}

// ─── 404 → exactly one renewal before the next poll ──────────────────────────

func TestRun_ListNotFoundRenewsThenPollsWithoutSleep(t *testing.T) {
	api := &fakeAPI{
		lists: []listReply{
			{status: http.StatusNotFound},
			{status: http.StatusOK, studies: []model.StudySummary{demoStudy()}},
		},
		reserves: []reserveReply{{status: http.StatusCreated}},
		renews:   []renewReply{{cred: auth.NewBearer("renewed")}},
	}
	clock := &fakeClock{}
	l, tm := newTestLoop(t, api, clock)

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Renewals)
	assert.Equal(t, []string{"list", "renew", "list", "reserve"}, api.calls)
	assert.Empty(t, clock.sleeps, "renewal returns to polling immediately")
	assert.Equal(t, []auth.Credential{"Bearer initial", "Bearer renewed"}, api.authSeen)
	assert.Equal(t, auth.Credential("Bearer renewed"), tm.Credential())
}

func TestRun_ReserveNotFoundRenewsThenPolls(t *testing.T) {
	api := &fakeAPI{
		lists: []listReply{
			{status: http.StatusOK, studies: []model.StudySummary{demoStudy()}},
			{status: http.StatusOK, studies: []model.StudySummary{demoStudy()}},
		},
		reserves: []reserveReply{
			{status: http.StatusNotFound},
			{status: http.StatusCreated},
		},
		renews: []renewReply{{cred: auth.NewBearer("renewed")}},
	}
	clock := &fakeClock{}
	l, _ := newTestLoop(t, api, clock)

	_, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"list", "reserve", "renew", "list", "reserve"}, api.calls)
	assert.NotEqual(t, api.authSeen[0], api.authSeen[1], "credential must change across a renewal")
}

func TestRun_RenewalFailureIsFatal(t *testing.T) {
	renewErr := &prolific.RenewalError{Status: http.StatusOK, Reason: "no redirect location"}
	api := &fakeAPI{
		lists:    []listReply{{status: http.StatusOK, studies: []model.StudySummary{demoStudy()}}},
		reserves: []reserveReply{{status: http.StatusNotFound}},
		renews:   []renewReply{{err: renewErr}},
	}
	clock := &fakeClock{}
	l, _ := newTestLoop(t, api, clock)

	res, err := l.Run(context.Background())
	assert.Nil(t, res)
	var rerr *prolific.RenewalError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, []string{"list", "reserve", "renew"}, api.calls, "no polling after a failed renewal")
	assert.Equal(t, "fatal", l.Snapshot().State)
	assert.Contains(t, l.Snapshot().LastError, "no redirect location")
}

// ─── Unknown statuses are fatal everywhere ───────────────────────────────────

func TestRun_UnexpectedListStatusIsFatal(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		api := &fakeAPI{lists: []listReply{{status: status, studies: []model.StudySummary{demoStudy()}}}}
		clock := &fakeClock{}
		l, _ := newTestLoop(t, api, clock)

		_, err := l.Run(context.Background())
		var serr *UnexpectedStatusError
		require.True(t, errors.As(err, &serr), "status %d", status)
		assert.Equal(t, prolific.OpListStudies, serr.Op)
		assert.Equal(t, status, serr.Status)
		assert.Equal(t, []string{"list"}, api.calls, "status %d: no further calls", status)
		assert.Empty(t, clock.sleeps)
	}
}

func TestRun_UnexpectedReserveStatusIsFatal(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict, http.StatusInternalServerError} {
		api := &fakeAPI{
			lists:    []listReply{{status: http.StatusOK, studies: []model.StudySummary{demoStudy()}}},
			reserves: []reserveReply{{status: status, body: `{"detail":"nope"}`}},
		}
		clock := &fakeClock{}
		l, _ := newTestLoop(t, api, clock)

		_, err := l.Run(context.Background())
		var serr *UnexpectedStatusError
		require.True(t, errors.As(err, &serr), "status %d", status)
		assert.Equal(t, prolific.OpReserveStudy, serr.Op)
		assert.Contains(t, serr.Error(), "nope")
		assert.Equal(t, []string{"list", "reserve"}, api.calls, "status %d: no further calls", status)
	}
}

// ─── Transport errors are not retried ────────────────────────────────────────

func TestRun_TransportErrorIsFatal(t *testing.T) {
	terr := &prolific.TransportError{Op: prolific.OpListStudies, Err: errors.New("connection reset")}
	api := &fakeAPI{lists: []listReply{{err: terr}}}
	clock := &fakeClock{}
	l, _ := newTestLoop(t, api, clock)

	_, err := l.Run(context.Background())
	assert.ErrorIs(t, err, terr)
	assert.Equal(t, []string{"list"}, api.calls)
}

// ─── Cancellation ─────────────────────────────────────────────────────────────

func TestRun_CancelDuringBackoffStops(t *testing.T) {
	api := &fakeAPI{lists: []listReply{{status: http.StatusOK}}}
	ctx, cancel := context.WithCancel(context.Background())

	tm := auth.NewTokenManager(zap.NewNop(), auth.ProxyConfig{})
	api.t = t
	l := NewLoop(zap.NewNop(), api, tm, Config{Interval: time.Hour}, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return SleepContext(ctx, d)
	}))

	_, err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"list"}, api.calls)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewLoop_ShortIntervalDefaultsToThird(t *testing.T) {
	l := NewLoop(zap.NewNop(), &fakeAPI{}, nil, Config{Interval: 9 * time.Second})
	assert.Equal(t, 3*time.Second, l.cfg.ShortInterval)

	l = NewLoop(zap.NewNop(), &fakeAPI{}, nil, Config{Interval: 9 * time.Second, ShortInterval: time.Second})
	assert.Equal(t, time.Second, l.cfg.ShortInterval)
}
