package notify_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/internal/store/memory"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

const semester = "202508"

type recordingQueue struct {
	mu   sync.Mutex
	jobs []notify.Job
	fail map[string]bool
}

func (q *recordingQueue) Enqueue(_ context.Context, job notify.Job) error {
	if q.fail[job.Target] {
		return errors.New("queue full")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][][]byte
	fail map[string]bool
}

func (s *recordingSender) Send(_ context.Context, target string, payload []byte) error {
	if s.fail[target] {
		return errors.New("gone")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][][]byte)
	}
	s.sent[target] = append(s.sent[target], payload)
	return nil
}

func openSeat() events.Event {
	ev := events.Event{
		Type: events.OpenSeatAvailable, Semester: semester, Course: "CMSC131", Section: "0101",
		Title: "Object-Oriented Programming I", Change: events.CountChange{Old: 0, New: 2},
	}
	ev.Stamp()
	return ev
}

func setup(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Subscribe(ctx, subscriptions.Subscription{
		Semester: semester, Scope: subscriptions.ScopeSection, Key: "CMSC131-0101", UserID: "alice",
		Settings: subscriptions.Settings{events.OpenSeatAvailable: true},
	}))
	require.NoError(t, store.SaveProfile(ctx, notify.Profile{
		UserID:  "alice",
		Tier:    notify.TierPro,
		Push:    notify.Channel{Target: "https://push.example.com/alice", Enabled: true},
		Discord: notify.Channel{Target: "https://discord.com/api/webhooks/1/a", Enabled: true},
		Webhook: notify.Channel{Target: "https://hooks.example.com/alice", Enabled: true},
	}))
	return store
}

func TestThreeChannels(t *testing.T) {
	store := setup(t)
	queue := &recordingQueue{}
	push := &recordingSender{}
	d := notify.NewDispatcher(subscriptions.NewResolver(store), store, queue,
		notify.WithPushSender(push), notify.WithShards(4))

	res, err := d.Dispatch(context.Background(), []events.Event{openSeat()}, "CMSC", semester)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Delivered)
	assert.Zero(t, res.Failed)
	assert.NoError(t, res.Err())

	require.Len(t, push.sent["https://push.example.com/alice"], 1)
	require.Len(t, queue.jobs, 2)

	kinds := map[notify.ChannelKind]notify.Job{}
	for _, job := range queue.jobs {
		kinds[job.Kind] = job
		assert.Equal(t, notify.Shard(job.Target, 4), job.Shard)
		assert.Equal(t, "alice", job.UserID)
		assert.Equal(t, openSeat().ID, job.EventID)
		assert.NotEmpty(t, job.ID)
	}
	assert.Contains(t, kinds, notify.ChannelDiscord)
	assert.Contains(t, kinds, notify.ChannelWebhook)
	assert.NotContains(t, kinds, notify.ChannelPush, "push is sent directly, never queued")

	var webhook struct {
		Event events.Event `json:"event"`
	}
	require.NoError(t, json.Unmarshal(kinds[notify.ChannelWebhook].Payload, &webhook))
	assert.Equal(t, events.OpenSeatAvailable, webhook.Event.Type)
}

func TestTierLimitsChannels(t *testing.T) {
	tests := []struct {
		tier   notify.Tier
		pushes int
		jobs   int
	}{
		{tier: notify.TierNone},
		{tier: notify.TierBasic, pushes: 1, jobs: 1},
		{tier: notify.TierPro, pushes: 1, jobs: 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			store := setup(t)
			p, err := store.Profile(context.Background(), "alice")
			require.NoError(t, err)
			p.Tier = tt.tier
			require.NoError(t, store.SaveProfile(context.Background(), p))

			queue := &recordingQueue{}
			push := &recordingSender{}
			d := notify.NewDispatcher(subscriptions.NewResolver(store), store, queue, notify.WithPushSender(push))
			res, err := d.Dispatch(context.Background(), []events.Event{openSeat()}, "CMSC", semester)
			require.NoError(t, err)

			assert.Len(t, push.sent["https://push.example.com/alice"], tt.pushes)
			assert.Len(t, queue.jobs, tt.jobs)
			assert.Equal(t, tt.pushes+tt.jobs, res.Delivered)
		})
	}
}

func TestDisabledCategorySendsNothing(t *testing.T) {
	store := setup(t)
	queue := &recordingQueue{}
	d := notify.NewDispatcher(subscriptions.NewResolver(store), store, queue, notify.WithPushSender(&recordingSender{}))

	ev := openSeat()
	ev.Type = events.WaitlistChanged
	ev.Stamp()
	res, err := d.Dispatch(context.Background(), []events.Event{ev}, "CMSC", semester)
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)
	assert.Empty(t, queue.jobs)
}

func TestCommunityChannels(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.AddCommunityChannel(ctx, semester, subscriptions.ScopeDepartment, "CMSC", "https://discord.com/api/webhooks/cmsc"))
	require.NoError(t, store.AddCommunityChannel(ctx, semester, subscriptions.ScopeEverything, subscriptions.EverythingKey, "https://discord.com/api/webhooks/all"))
	require.NoError(t, store.AddCommunityChannel(ctx, semester, subscriptions.ScopeDepartment, "MATH", "https://discord.com/api/webhooks/math"))
	assert.Error(t, store.AddCommunityChannel(ctx, semester, subscriptions.ScopeCourse, "CMSC131", "https://x"))

	queue := &recordingQueue{}
	d := notify.NewDispatcher(subscriptions.NewResolver(store), store, queue, notify.WithCommunityStore(store))

	// Community channels get every event, even types no one subscribed to.
	ev := openSeat()
	ev.Type = events.HoldfileChanged
	ev.Stamp()
	res, err := d.Dispatch(ctx, []events.Event{openSeat(), ev}, "CMSC", semester)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Delivered)

	targets := map[string]int{}
	for _, job := range queue.jobs {
		assert.Equal(t, notify.ChannelDiscord, job.Kind)
		assert.Empty(t, job.UserID)
		targets[job.Target]++
	}
	assert.Equal(t, map[string]int{
		"https://discord.com/api/webhooks/cmsc": 2,
		"https://discord.com/api/webhooks/all":  2,
	}, targets)
}

func TestPartialFailures(t *testing.T) {
	store := setup(t)
	require.NoError(t, store.Subscribe(context.Background(), subscriptions.Subscription{
		Semester: semester, Scope: subscriptions.ScopeCourse, Key: "CMSC131", UserID: "bob",
		Settings: subscriptions.Settings{events.OpenSeatAvailable: true},
	}))
	require.NoError(t, store.SaveProfile(context.Background(), notify.Profile{
		UserID: "bob", Tier: notify.TierBasic,
		Push:    notify.Channel{Target: "https://push.example.com/bob", Enabled: true},
		Discord: notify.Channel{Target: "https://discord.com/api/webhooks/2/b", Enabled: true},
	}))

	queue := &recordingQueue{fail: map[string]bool{"https://hooks.example.com/alice": true}}
	push := &recordingSender{fail: map[string]bool{"https://push.example.com/bob": true}}
	reg := prometheus.NewRegistry()
	metrics := notify.NewMetrics(reg)
	d := notify.NewDispatcher(subscriptions.NewResolver(store), store, queue,
		notify.WithPushSender(push), notify.WithMetrics(metrics), notify.WithConcurrency(2))

	res, err := d.Dispatch(context.Background(), []events.Event{openSeat()}, "CMSC", semester)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Delivered)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "alice", res.Failures[0].UserID)
	assert.Equal(t, "webhook", res.Failures[0].Channel)
	assert.Equal(t, "bob", res.Failures[1].UserID)
	assert.Equal(t, "push", res.Failures[1].Channel)
	assert.True(t, errors.IsDelivery(res.Err()))

	n, err := testutil.GatherAndCount(reg, "seatwatch_notify_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.InDelta(t, 1, counterValue(t, reg, "push", "failed"), 0)
	assert.InDelta(t, 2, counterValue(t, reg, "discord", "delivered"), 0)
}

func TestMissingProfileIsNotAFailure(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Subscribe(context.Background(), subscriptions.Subscription{
		Semester: semester, Scope: subscriptions.ScopeCourse, Key: "CMSC131", UserID: "ghost",
		Settings: subscriptions.Settings{events.OpenSeatAvailable: true},
	}))
	d := notify.NewDispatcher(subscriptions.NewResolver(store), store, &recordingQueue{})
	res, err := d.Dispatch(context.Background(), []events.Event{openSeat()}, "CMSC", semester)
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)
	assert.Zero(t, res.Failed)
}

func TestDispatchRequiresSemester(t *testing.T) {
	d := notify.NewDispatcher(subscriptions.NewResolver(memory.New()), memory.New(), &recordingQueue{})
	_, err := d.Dispatch(context.Background(), nil, "CMSC", "")
	assert.True(t, errors.IsValidationError(err))
}

func counterValue(t *testing.T, reg *prometheus.Registry, channel, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "seatwatch_notify_deliveries_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["channel"] == channel && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
