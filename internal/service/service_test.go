package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alert-relay/backend/internal/archive"
	"github.com/alert-relay/backend/internal/client"
	"github.com/alert-relay/backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender - 수신자별 outcome을 미리 지정하는 Sender
type fakeSender struct {
	kind     model.ChannelKind
	outcomes map[string]model.Outcome
	panicMsg string

	mu       sync.Mutex
	messages []string
}

func (f *fakeSender) Kind() model.ChannelKind { return f.kind }

func (f *fakeSender) Send(_ context.Context, cfg model.ChannelConfig, message string) []model.DeliveryAttempt {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.mu.Lock()
	f.messages = append(f.messages, message)
	f.mu.Unlock()

	var out []model.DeliveryAttempt
	for _, r := range cfg.Recipients {
		outcome, ok := f.outcomes[r]
		if !ok {
			outcome = model.OutcomeSuccess
		}
		out = append(out, model.DeliveryAttempt{Channel: cfg.DisplayName(), Kind: f.kind, Recipient: r, Variant: model.VariantText, Outcome: outcome})
	}
	return out
}

func (f *fakeSender) TestConnection(context.Context, model.ChannelConfig) model.ConnectionResult {
	return model.ConnectionResult{Success: true, Detail: "fake"}
}

type staticChannels []model.ChannelConfig

func (s staticChannels) ListChannels(context.Context) ([]model.ChannelConfig, error) {
	return s, nil
}

type failingArchive struct{}

func (failingArchive) Append([]model.Event) (string, int, error) {
	return "/ro/2024-01-01.jsonl", 0, errors.New("read-only file system")
}

func testEvents(at time.Time) []model.Event {
	return []model.Event{
		model.NewEvent(map[string]any{"id": "1", "threatInfo": map[string]any{"threatName": "Mimikatz"}}, at),
		model.NewEvent(map[string]any{"id": "2", "ruleInfo": map[string]any{"name": "Lateral movement"}}, at),
	}
}

func TestAggregate(t *testing.T) {
	attempts := []model.DeliveryAttempt{
		{Channel: "tg", Recipient: "1", Outcome: model.OutcomeSuccess},
		{Channel: "tg", Recipient: "2", Outcome: model.OutcomeSuccess},
		{Channel: "tg", Recipient: "3", Outcome: model.OutcomeFailed},
		{Channel: "teams", Recipient: "a", Variant: model.VariantCard, Outcome: model.OutcomeRejectedRetryable},
		{Channel: "teams", Recipient: "a", Variant: model.VariantFallback, Outcome: model.OutcomeSuccess},
		{Channel: "wa", Recipient: "x", Outcome: model.OutcomeFailed},
	}

	report := Aggregate(attempts)
	require.Len(t, report.Channels, 3)
	assert.NotEmpty(t, report.ID)
	assert.True(t, report.Success)

	tg, ok := report.Channel("tg")
	require.True(t, ok)
	assert.Equal(t, 2, tg.SuccessCount)
	assert.Equal(t, 3, tg.Total)
	assert.Equal(t, model.ChannelStatusPartial, tg.Status)

	teams, _ := report.Channel("teams")
	assert.Equal(t, 1, teams.SuccessCount)
	assert.Equal(t, 1, teams.Total)
	assert.Equal(t, model.ChannelStatusSuccess, teams.Status)
	assert.Len(t, teams.Attempts, 2)

	wa, _ := report.Channel("wa")
	assert.Equal(t, model.ChannelStatusFailed, wa.Status)
}

func TestAggregateAllFailed(t *testing.T) {
	report := Aggregate([]model.DeliveryAttempt{{Channel: "tg", Recipient: "1", Outcome: model.OutcomeFailed}})
	assert.False(t, report.Success)
}

func TestDispatchZeroChannelsIsSuccess(t *testing.T) {
	router := NewRouter(nil)
	report := router.Dispatch(context.Background(), testEvents(time.Now()), "f.jsonl", nil)
	assert.Empty(t, report.Channels)
	assert.True(t, report.Success)
}

func TestDispatchSkipsInactiveChannels(t *testing.T) {
	sender := &fakeSender{kind: model.ChannelTelegram}
	router := NewRouter(nil, sender)

	report := router.Dispatch(context.Background(), testEvents(time.Now()), "f.jsonl", []model.ChannelConfig{
		{Name: "off", Kind: model.ChannelTelegram, Enabled: false, Recipients: []string{"1"}},
		{Name: "empty", Kind: model.ChannelTelegram, Enabled: true},
	})
	assert.Empty(t, report.Channels)
	assert.True(t, report.Success)
	assert.Empty(t, sender.messages)
}

func TestDispatchRendersOneSummaryPerChannel(t *testing.T) {
	sender := &fakeSender{kind: model.ChannelTeams}
	router := NewRouter(nil, sender)

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	router.Dispatch(context.Background(), testEvents(at), "events/2024-01-01.jsonl", []model.ChannelConfig{
		{Name: "teams", Kind: model.ChannelTeams, Enabled: true, Recipients: []string{"a", "b"}, Template: "{{count}}|{{threat}}|{{file}}|{{timestamp}}"},
	})

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "2|Lateral movement, Mimikatz|events/2024-01-01.jsonl|2024-01-01 12:00:00", sender.messages[0])
}

func TestDispatchIsolatesPanickingSender(t *testing.T) {
	router := NewRouter(nil,
		&fakeSender{kind: model.ChannelTelegram, panicMsg: "boom"},
		&fakeSender{kind: model.ChannelWhatsApp},
	)

	report := router.Dispatch(context.Background(), testEvents(time.Now()), "f.jsonl", []model.ChannelConfig{
		{Name: "tg", Kind: model.ChannelTelegram, Enabled: true, Recipients: []string{"1", "2"}},
		{Name: "wa", Kind: model.ChannelWhatsApp, Enabled: true, Recipients: []string{"x"}},
	})

	require.Len(t, report.Channels, 2)
	assert.Equal(t, "tg", report.Channels[0].Channel)
	assert.Equal(t, model.ChannelStatusFailed, report.Channels[0].Status)
	assert.Equal(t, 2, report.Channels[0].Total)
	assert.Contains(t, report.Channels[0].Attempts[0].Detail, "boom")
	assert.Equal(t, model.ChannelStatusSuccess, report.Channels[1].Status)
	assert.True(t, report.Success)
}

func TestDispatchUnknownKindFails(t *testing.T) {
	router := NewRouter(nil)
	report := router.Dispatch(context.Background(), testEvents(time.Now()), "", []model.ChannelConfig{
		{Name: "sms", Kind: "sms", Enabled: true, Recipients: []string{"1"}},
	})
	require.Len(t, report.Channels, 1)
	assert.Equal(t, model.ChannelStatusFailed, report.Channels[0].Status)
	assert.False(t, report.Success)
}

func TestDispatchPartialWhenOneRecipientTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			<-release
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	router := NewRouter(nil, client.NewTeamsClient(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	report := router.Dispatch(ctx, testEvents(time.Now()), "f.jsonl", []model.ChannelConfig{{
		Name:       "teams",
		Kind:       model.ChannelTeams,
		Enabled:    true,
		Recipients: []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/slow"},
	}})

	ch, ok := report.Channel("teams")
	require.True(t, ok)
	assert.Equal(t, model.ChannelStatusPartial, ch.Status)
	assert.Equal(t, 2, ch.SuccessCount)
	assert.Equal(t, 3, ch.Total)
	assert.True(t, report.Success)
}

func TestIngestArchivesBeforeDispatch(t *testing.T) {
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	store := archive.NewStoreWithClock(t.TempDir(), nil, func() time.Time { return at })
	sender := &fakeSender{kind: model.ChannelTelegram}
	channels := staticChannels{{Name: "tg", Kind: model.ChannelTelegram, Enabled: true, Recipients: []string{"1"}, Template: "{{file}}"}}

	svc := NewAlertService(store, NewRouter(nil, sender), channels, nil)
	res, err := svc.Ingest(context.Background(), testEvents(at))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Archived)
	assert.Equal(t, "2024-01-01.jsonl", filepath.Base(res.File))
	require.Len(t, sender.messages, 1)
	assert.Equal(t, res.File, sender.messages[0])
	assert.True(t, res.Report.Success)
}

func TestIngestArchiveFailureStillDispatches(t *testing.T) {
	sender := &fakeSender{kind: model.ChannelTelegram}
	channels := staticChannels{{Name: "tg", Kind: model.ChannelTelegram, Enabled: true, Recipients: []string{"1"}}}

	svc := NewAlertService(failingArchive{}, NewRouter(nil, sender), channels, nil)
	res, err := svc.Ingest(context.Background(), testEvents(time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveWrite)
	assert.Len(t, sender.messages, 1)
	assert.True(t, res.Report.Success)
}

func TestIngestEmptyBatchIsNoop(t *testing.T) {
	sender := &fakeSender{kind: model.ChannelTelegram}
	svc := NewAlertService(failingArchive{}, NewRouter(nil, sender), staticChannels{}, nil)
	res, err := svc.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.File)
	assert.Empty(t, sender.messages)
}

// fakeFetcher - 호출마다 results / errs를 순서대로 반환
type fakeFetcher struct {
	configured bool
	results    [][]map[string]any
	errs       []error
	calls      atomic.Int32
	onFetch    func(n int)
}

func (f *fakeFetcher) IsConfigured() bool { return f.configured }

func (f *fakeFetcher) FetchAlerts(context.Context, int) ([]map[string]any, error) {
	n := int(f.calls.Add(1))
	if f.onFetch != nil {
		f.onFetch(n)
	}
	i := n - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

type recordingIngester struct {
	mu      sync.Mutex
	batches [][]model.Event
	ctxErrs []error
	before  func()
}

func (r *recordingIngester) Ingest(ctx context.Context, events []model.Event) (IngestResult, error) {
	if r.before != nil {
		r.before()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return IngestResult{Archived: len(events)}, nil
}

func TestPollerMisconfiguredFailsBeforeFirstCycle(t *testing.T) {
	fetcher := &fakeFetcher{configured: false}
	p := NewPoller(fetcher, &recordingIngester{}, time.Millisecond, 5, nil)

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrMisconfigured)
	assert.Equal(t, int32(0), fetcher.calls.Load())

	monitor := client.NewMonitorClient("https://example.net", "", nil)
	err = NewPoller(monitor, &recordingIngester{}, time.Millisecond, 5, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrMisconfigured)
}

func TestPollerEmptyFetchSkipsIngest(t *testing.T) {
	ingester := &recordingIngester{}
	p := NewPoller(&fakeFetcher{configured: true}, ingester, time.Millisecond, 5, nil)

	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ingester.batches)
}

func TestPollerContinuesAfterFailedCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{
		configured: true,
		errs:       []error{errors.New("connection refused")},
		results:    [][]map[string]any{nil, {{"id": "1"}}},
	}
	ingester := &recordingIngester{before: cancel}
	p := NewPoller(fetcher, ingester, 5*time.Millisecond, 5, nil)

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, int32(2), fetcher.calls.Load())
	require.Len(t, ingester.batches, 1)
	assert.Equal(t, "1", ingester.batches[0][0].Raw["id"])
}

func TestPollerFinishesInFlightCycleOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{
		configured: true,
		results:    [][]map[string]any{{{"id": "1"}}, {{"id": "2"}}},
	}
	// fetch 도중 취소 신호
	fetcher.onFetch = func(int) { cancel() }
	ingester := &recordingIngester{}
	p := NewPoller(fetcher, ingester, time.Hour, 5, nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop after cancellation")
	}

	assert.Equal(t, int32(1), fetcher.calls.Load())
	require.Len(t, ingester.batches, 1)
	assert.NoError(t, ingester.ctxErrs[0])
}

func TestPollCycleArchivesAndNotifiesTelegram(t *testing.T) {
	var sent atomic.Int32
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botT/sendMessage", r.URL.Path)
		_, _ = io.ReadAll(r.Body)
		sent.Add(1)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer tg.Close()

	day := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	store := archive.NewStoreWithClock(t.TempDir(), nil, func() time.Time { return day })
	router := NewRouter(nil, client.NewTelegramClient(nil))
	channels := NewChannelService([]model.ChannelConfig{{
		Name: "telegram", Kind: model.ChannelTelegram, Enabled: true,
		Endpoint: tg.URL, Token: "T", Recipients: []string{"-100123"},
	}}, nil, router, nil)
	svc := NewAlertService(store, router, channels, nil)

	fetcher := &fakeFetcher{configured: true, results: [][]map[string]any{{
		{"id": "a", "threatInfo": map[string]any{"threatName": "Emotet"}},
		{"id": "b", "ruleInfo": map[string]any{"name": "Brute force"}},
	}}}
	p := NewPoller(fetcher, svc, time.Minute, 2, nil)
	p.now = func() time.Time { return day }

	res, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01.jsonl", filepath.Base(res.File))
	assert.Equal(t, 2, res.Archived)

	stored, err := store.ReadForDate("2024-01-01")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "a", stored[0].Raw["id"])
	assert.Equal(t, "b", stored[1].Raw["id"])

	ch, ok := res.Report.Channel("telegram")
	require.True(t, ok)
	assert.Equal(t, 1, ch.SuccessCount)
	assert.Equal(t, 1, ch.Total)
	assert.True(t, res.Report.Success)
	assert.Equal(t, int32(1), sent.Load())
}

type fakeChannelRepo struct {
	channels []model.ChannelConfig
	err      error
	saved    *[]model.ChannelConfig
}

func (f fakeChannelRepo) GetChannelConfigs(context.Context) ([]model.ChannelConfig, error) {
	return f.channels, f.err
}

func (f fakeChannelRepo) UpsertChannelConfig(_ context.Context, cfg model.ChannelConfig) (int, error) {
	if f.saved != nil {
		*f.saved = append(*f.saved, cfg)
	}
	return 7, f.err
}

func (f fakeChannelRepo) DeleteChannelConfig(context.Context, string) error {
	return f.err
}

func TestChannelServiceMergesStoredChannels(t *testing.T) {
	static := []model.ChannelConfig{
		{Name: "tg", Kind: model.ChannelTelegram, Token: "env"},
		{Name: "teams", Kind: model.ChannelTeams},
	}
	repo := fakeChannelRepo{channels: []model.ChannelConfig{
		{Name: "tg", Kind: model.ChannelTelegram, Token: "db"},
		{Name: "wa", Kind: model.ChannelWhatsApp},
	}}
	svc := NewChannelService(static, repo, NewRouter(nil), nil)

	got, err := svc.ListChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "db", got[0].Token)
	assert.Equal(t, "wa", got[2].Name)

	masked, err := svc.ListMaskedChannels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "***", masked[0].Token)
}

func TestChannelServiceRepoErrorFallsBackToStatic(t *testing.T) {
	svc := NewChannelService([]model.ChannelConfig{{Name: "tg"}}, fakeChannelRepo{err: errors.New("db down")}, NewRouter(nil), nil)
	got, err := svc.ListChannels(context.Background())
	assert.Error(t, err)
	assert.Len(t, got, 1)
}

func TestChannelServiceTestChannel(t *testing.T) {
	router := NewRouter(nil, &fakeSender{kind: model.ChannelTeams})
	svc := NewChannelService([]model.ChannelConfig{{Name: "teams", Kind: model.ChannelTeams}}, nil, router, nil)

	res, err := svc.TestChannel(context.Background(), "teams")
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = svc.TestChannel(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestChannelServiceSaveChannel(t *testing.T) {
	var saved []model.ChannelConfig
	svc := NewChannelService(nil, fakeChannelRepo{saved: &saved}, NewRouter(nil), nil)

	id, err := svc.SaveChannel(context.Background(), model.ChannelConfig{Name: "wa", Kind: model.ChannelWhatsApp})
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	require.Len(t, saved, 1)
	assert.Equal(t, []string{}, saved[0].Recipients)

	_, err = svc.SaveChannel(context.Background(), model.ChannelConfig{Name: "x", Kind: "sms"})
	assert.ErrorIs(t, err, ErrInvalidChannel)

	_, err = svc.SaveChannel(context.Background(), model.ChannelConfig{Kind: model.ChannelTeams})
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestChannelServiceWithoutStore(t *testing.T) {
	svc := NewChannelService(nil, nil, NewRouter(nil), nil)

	_, err := svc.SaveChannel(context.Background(), model.ChannelConfig{Name: "wa", Kind: model.ChannelWhatsApp})
	assert.ErrorIs(t, err, ErrNoChannelStore)
	assert.ErrorIs(t, svc.DeleteChannel(context.Background(), "wa"), ErrNoChannelStore)
}

func TestChannelServiceDeleteUnknownChannel(t *testing.T) {
	repo := fakeChannelRepo{err: fmt.Errorf("channel config not found: name=gone: %w", pgx.ErrNoRows)}
	svc := NewChannelService(nil, repo, NewRouter(nil), nil)

	err := svc.DeleteChannel(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrChannelNotFound)

	svc = NewChannelService(nil, fakeChannelRepo{err: errors.New("db down")}, NewRouter(nil), nil)
	err = svc.DeleteChannel(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChannelNotFound)

	svc = NewChannelService(nil, fakeChannelRepo{}, NewRouter(nil), nil)
	assert.NoError(t, svc.DeleteChannel(context.Background(), "x"))
}
