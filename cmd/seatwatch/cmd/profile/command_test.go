package profile_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/profile"
	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/internal/store/memory"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

func execute(t *testing.T, app appcontext.Interface, args ...string) (string, error) {
	t.Helper()
	cmd := profile.NewCommand(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSetCreatesProfile(t *testing.T) {
	store := memory.New()
	app := &appcontext.Mock{Backend: store, Format: "json"}

	out, err := execute(t, app, "set", "alice", "--tier", "basic", "--discord", "https://discord.example/hook")
	require.NoError(t, err)

	var printed notify.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &printed))
	assert.Equal(t, notify.TierBasic, printed.Tier)

	saved, err := store.Profile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, notify.Channel{Target: "https://discord.example/hook", Enabled: true}, saved.Discord)
	assert.Equal(t, map[notify.ChannelKind]string{notify.ChannelDiscord: "https://discord.example/hook"}, saved.Channels())
}

func TestSetUpdatesExistingProfile(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.SaveProfile(context.Background(), notify.Profile{
		UserID:  "bob",
		Tier:    notify.TierPro,
		Webhook: notify.Channel{Target: "https://hooks.example/bob", Enabled: true},
	}))
	app := &appcontext.Mock{Backend: store}

	_, err := execute(t, app, "set", "bob", "--push", "https://push.example/bob", "--disable", "webhook")
	require.NoError(t, err)

	saved, err := store.Profile(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, notify.TierPro, saved.Tier)
	assert.True(t, saved.Push.Enabled)
	assert.False(t, saved.Webhook.Enabled)
	assert.Equal(t, "https://hooks.example/bob", saved.Webhook.Target, "disabling keeps the target")
}

func TestGet(t *testing.T) {
	store := memory.New()
	app := &appcontext.Mock{Backend: store, Format: "json"}

	_, err := execute(t, app, "get", "nobody")
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, store.SaveProfile(context.Background(), notify.Profile{UserID: "carol", Tier: notify.TierNone}))
	out, err := execute(t, app, "get", "carol")
	require.NoError(t, err)
	assert.Contains(t, out, `"user_id": "carol"`)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		flags   profile.SetFlags
		want    notify.Profile
		wantErr bool
	}{
		{
			name:  "tier only",
			flags: profile.SetFlags{Tier: "pro"},
			want:  notify.Profile{UserID: "u", Tier: notify.TierPro},
		},
		{
			name:  "target enables channel",
			flags: profile.SetFlags{Webhook: "https://h"},
			want:  notify.Profile{UserID: "u", Tier: notify.TierNone, Webhook: notify.Channel{Target: "https://h", Enabled: true}},
		},
		{
			name:  "disable after set",
			flags: profile.SetFlags{Push: "https://p", Disable: []string{"push"}},
			want:  notify.Profile{UserID: "u", Tier: notify.TierNone, Push: notify.Channel{Target: "https://p"}},
		},
		{
			name:    "unknown tier",
			flags:   profile.SetFlags{Tier: "gold"},
			wantErr: true,
		},
		{
			name:    "unknown channel",
			flags:   profile.SetFlags{Disable: []string{"sms"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := notify.Profile{UserID: "u", Tier: notify.TierNone}
			err := profile.Apply(&p, &tt.flags)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestCommunity(t *testing.T) {
	store := memory.New()
	app := &appcontext.Mock{Backend: store}

	_, err := execute(t, app, "community", "https://discord.example/cmsc", "--semester", "202508", "--dept", "CMSC")
	require.NoError(t, err)
	_, err = execute(t, app, "community", "https://discord.example/all", "--semester", "202508", "--scope", "everything")
	require.NoError(t, err)

	urls, err := store.Channels(context.Background(), "202508", subscriptions.ScopeDepartment, "CMSC")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://discord.example/cmsc"}, urls)

	urls, err = store.Channels(context.Background(), "202508", subscriptions.ScopeEverything, subscriptions.EverythingKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://discord.example/all"}, urls)

	_, err = execute(t, app, "community", "https://x", "--semester", "202508", "--scope", "section", "--dept", "CMSC")
	assert.Error(t, err)
}
