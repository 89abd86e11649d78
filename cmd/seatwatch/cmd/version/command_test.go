package version_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/version"
	"github.com/agentstation/seatwatch/internal/appcontext"
)

func TestVersion(t *testing.T) {
	cmd := version.NewCommand(&appcontext.Mock{VersionFunc: func() string { return "v1.2.3" }})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "seatwatch version v1.2.3")
	assert.Contains(t, out.String(), "built by: test")
	assert.Contains(t, out.String(), "go version: go")
}
