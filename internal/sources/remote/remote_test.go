package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/internal/sources/remote"
	"github.com/agentstation/seatwatch/pkg/errors"
)

const snapshot = `
courses:
  - id: CMSC131
    name: Object-Oriented Programming I
    sections:
      - id: "0101"
        open_seats: 2
        total_seats: 30
`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/catalog/202508/CMSC", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		_, _ = w.Write([]byte(snapshot))
	}))
	defer srv.Close()

	src := remote.New(srv.URL+"/catalog/", remote.WithHeader("X-Token", "secret"))
	got, err := src.Fetch(context.Background(), "202508", "CMSC")
	require.NoError(t, err)
	assert.Equal(t, uint(2), got["CMSC131"].Sections["0101"].OpenSeats)
}

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := remote.New(srv.URL).Fetch(context.Background(), "202508", "CMSC")
	var fe *errors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.True(t, errors.IsUnavailable(err))
}

func TestFetchMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("courses: [{name: no id}]"))
	}))
	defer srv.Close()

	_, err := remote.New(srv.URL).Fetch(context.Background(), "202508", "CMSC")
	var fe *errors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.True(t, errors.IsValidationError(err))
}
