package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const malformedScenario = `
name: malformed
description: outcome outside the enum
expect:
  outcome: maybe
`

func TestValidateCommandAllValid(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"passing": passingScenario,
		"failing": failingScenario,
	})

	out, err := executeCommand(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 scenario file(s) valid")
}

func TestValidateCommandSchemaViolationExitsOne(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"passing":   passingScenario,
		"malformed": malformedScenario,
	})

	out, err := executeCommand(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "malformed")
}

func TestValidateCommandMissingDirExitsTwo(t *testing.T) {
	_, err := executeCommand(t, "validate", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateCommandEmptyDirExitsTwo(t *testing.T) {
	_, err := executeCommand(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
