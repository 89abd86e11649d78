package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/internal/sources/local"
	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/errors"
)

func TestSaveAndFetch(t *testing.T) {
	src := local.New(t.TempDir())
	c := catalog.Catalog{"CMSC131": {ID: "CMSC131", Name: "OOP I", Sections: map[string]catalog.Section{
		"0101": {ID: "0101", OpenSeats: 3, TotalSeats: 30},
	}}}
	require.NoError(t, src.Save("202508", "CMSC", c))

	got, err := src.Fetch(context.Background(), "202508", "CMSC")
	require.NoError(t, err)
	assert.True(t, got.Equal(c))
}

func TestFetchJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "202508"), 0o755))
	doc := `{"courses": [{"id": "MATH140", "name": "Calculus I", "sections": [{"id": "0101", "open_seats": 1, "total_seats": "20"}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "202508", "MATH.json"), []byte(doc), 0o644))

	got, err := local.New(dir).Fetch(context.Background(), "202508", "MATH")
	require.NoError(t, err)
	assert.Equal(t, uint(20), got["MATH140"].Sections["0101"].TotalSeats)
}

func TestFetchMissing(t *testing.T) {
	_, err := local.New(t.TempDir()).Fetch(context.Background(), "202508", "CMSC")
	var fe *errors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "CMSC", fe.Prefix)
}
