package diff_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/diff"
	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/errors"
)

func snapshot(open uint, instructor string) catalog.Catalog {
	return catalog.Catalog{"CMSC131": {
		ID:   "CMSC131",
		Name: "Object-Oriented Programming I",
		Sections: map[string]catalog.Section{
			"0101": {ID: "0101", OpenSeats: open, TotalSeats: 30, Instructor: instructor},
		},
	}}
}

func writeSnapshot(t *testing.T, name string, c catalog.Catalog) string {
	t.Helper()
	data, err := catalog.Encode(c, "202508", "CMSC")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func execute(t *testing.T, app appcontext.Interface, args ...string) (string, error) {
	t.Helper()
	cmd := diff.NewCommand(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDiffTable(t *testing.T) {
	oldPath := writeSnapshot(t, "old.yaml", snapshot(0, "Nelson Padua-Perez"))
	newPath := writeSnapshot(t, "new.yaml", snapshot(2, "Nelson Padua-Perez"))

	out, err := execute(t, &appcontext.Mock{}, oldPath, newPath, "--semester", "202508")
	require.NoError(t, err)
	assert.Contains(t, out, "open_seats_changed")
	assert.Contains(t, out, "open_seat_available")
	assert.Contains(t, out, "CMSC131")
}

func TestDiffSummaryJSON(t *testing.T) {
	oldPath := writeSnapshot(t, "old.yaml", snapshot(0, "Nelson Padua-Perez"))
	newPath := writeSnapshot(t, "new.yaml", snapshot(2, "Fawzi Emad"))

	out, err := execute(t, &appcontext.Mock{Format: "json"}, oldPath, newPath, "--summary", "--at", "2025-08-01T12:00:00Z")
	require.NoError(t, err)

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 1, counts["open_seats_changed"])
	assert.Equal(t, 1, counts["open_seat_available"])
	assert.Equal(t, 1, counts["instructor_changed"])
}

func TestDiffIgnore(t *testing.T) {
	oldPath := writeSnapshot(t, "old.yaml", snapshot(0, "A"))
	newPath := writeSnapshot(t, "new.yaml", snapshot(2, "B"))

	out, err := execute(t, &appcontext.Mock{Format: "json"}, oldPath, newPath,
		"--summary", "--ignore", "instructor_changed,open_seats_changed")
	require.NoError(t, err)

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, map[string]int{"open_seat_available": 1}, counts)
}

func TestDiffErrors(t *testing.T) {
	good := writeSnapshot(t, "good.yaml", snapshot(1, "A"))

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, &appcontext.Mock{}, good, filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		_, err := execute(t, &appcontext.Mock{}, good, good, "--at", "yesterday")
		var ve *errors.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "at", ve.Field)
	})

	t.Run("unknown ignored type", func(t *testing.T) {
		_, err := execute(t, &appcontext.Mock{}, good, good, "--ignore", "seat_sold")
		var ve *errors.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "ignore", ve.Field)
	})

	t.Run("identical snapshots", func(t *testing.T) {
		out, err := execute(t, &appcontext.Mock{Format: "json"}, good, good)
		require.NoError(t, err)
		var evs []json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(out), &evs))
		assert.Empty(t, evs)
	})
}
