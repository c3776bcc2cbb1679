package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitErrorMessage(t *testing.T) {
	err := NewExitError(ExitFailure, "something failed")
	assert.Equal(t, "something failed", err.Error())

	wrapped := WrapExitError(ExitCommandError, "open database", errors.New("no such file"))
	assert.Equal(t, "open database: no such file", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "no such file")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "failed")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad args")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))

	// Wrapped ExitErrors still surface their code.
	err := fmt.Errorf("context: %w", NewExitError(ExitCommandError, "inner"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFormatterJSONSuccess(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"count": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestFormatterJSONError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Error("E_FEED_MISMATCH", "mismatch detected", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_FEED_MISMATCH", resp.Error.Code)
}

func TestFormatterTextError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Error("E_SCHEMA", "bad scenario", nil))
	assert.Contains(t, buf.String(), "E_SCHEMA")
	assert.Contains(t, buf.String(), "bad scenario")
}

func TestVerboseLogRouting(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}

	f.VerboseLog("checked %d files", 4)
	assert.Empty(t, out.String(), "verbose output must not corrupt the JSON stream")
	assert.Contains(t, errOut.String(), "checked 4 files")

	quiet := &OutputFormatter{Format: "text", Writer: &out, Verbose: false}
	quiet.VerboseLog("hidden")
	assert.Empty(t, out.String())
}
