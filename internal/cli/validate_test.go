package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidateCmd(t *testing.T, format, path string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidDefinition(t *testing.T) {
	out, err := runValidateCmd(t, "text", "testdata/payout.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ payout: 1 node(s)")
}

func TestValidateValidDefinitionJSON(t *testing.T) {
	out, err := runValidateCmd(t, "json", "testdata/payout.cue")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)

	var result ValidationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.True(t, result.Valid)
	assert.Equal(t, "payout", result.Label)
	assert.Equal(t, 1, result.Nodes)
	assert.Positive(t, result.Size)
}

func TestValidateMissingFile(t *testing.T) {
	out, err := runValidateCmd(t, "text", "testdata/nope.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E002")
}

func TestValidateSyntaxError(t *testing.T) {
	out, err := runValidateCmd(t, "json", "testdata/broken.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeCompile, resp.Error.Code)
}

func TestValidateGraphErrors(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		out, err := runValidateCmd(t, "text", "testdata/dangling.cue")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "Error [E004]")
		assert.Contains(t, out, "missing node")
	})

	t.Run("json", func(t *testing.T) {
		out, err := runValidateCmd(t, "json", "testdata/dangling.cue")
		require.Error(t, err)

		resp := decodeResponse(t, out)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "1 validation error(s)")
	})
}
