package completion_test

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/completion"
)

func TestEventTypes(t *testing.T) {
	got, directive := completion.EventTypes(nil, nil, "open_")
	assert.ElementsMatch(t, []string{"open_seats_changed", "open_seat_available"}, got)
	assert.NotZero(t, directive&cobra.ShellCompDirectiveNoSpace)

	got, _ = completion.EventTypes(nil, nil, "course_added,wait")
	assert.Equal(t, []string{"course_added,waitlist_changed"}, got)

	got, _ = completion.EventTypes(nil, nil, "")
	assert.Len(t, got, 13)
}

func TestGenerate(t *testing.T) {
	root := &cobra.Command{Use: "seatwatch"}
	root.AddCommand(completion.NewCommand())

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"completion", shell})
		require.NoError(t, root.Execute(), shell)
		assert.Contains(t, out.String(), "seatwatch", shell)
	}

	root.SetArgs([]string{"completion", "tcsh"})
	assert.Error(t, root.Execute())
}
