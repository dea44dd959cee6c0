package claudeagent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
model: claude-sonnet-4-5
system-prompt: You are a code reviewer.
permission-mode: acceptEdits
allowed-tools:
  - Read
  - Grep
max-turns: 5
env:
  FOO: bar
mcp-servers:
  docs:
    command: docs-mcp
    args: ["--root", "/srv/docs"]
`)

	config, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-5", config.Model)
	assert.Equal(t, "You are a code reviewer.", config.SystemPrompt)
	assert.Equal(t, "acceptEdits", config.PermissionMode)
	assert.Equal(t, []string{"Read", "Grep"}, config.AllowedTools)
	assert.Equal(t, 5, config.MaxTurns)
	assert.Equal(t, "bar", config.Env["FOO"])
	require.Contains(t, config.MCPServers, "docs")
	assert.Equal(t, "docs-mcp", config.MCPServers["docs"].Command)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigFileInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "model: [unclosed")
	_, err := LoadConfigFile(path)

	var invalid *ErrInvalidConfiguration
	require.ErrorAs(t, err, &invalid)
}

func TestConfigValidatePermissionMode(t *testing.T) {
	config := &FileConfig{PermissionMode: "yolo"}
	err := config.Validate()

	var invalid *ErrInvalidConfiguration
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "permission-mode", invalid.Field)
}

func TestConfigValidateNegativeMaxTurns(t *testing.T) {
	config := &FileConfig{MaxTurns: -1}
	var invalid *ErrInvalidConfiguration
	require.ErrorAs(t, config.Validate(), &invalid)
}

func TestConfigValidateMCPServerShape(t *testing.T) {
	config := &FileConfig{
		MCPServers: map[string]MCPServerConfig{
			"broken": {},
		},
	}
	var invalid *ErrInvalidConfiguration
	require.ErrorAs(t, config.Validate(), &invalid)
	assert.Contains(t, invalid.Field, "broken")
}

func TestConfigApplyOverlaysOptions(t *testing.T) {
	config := &FileConfig{
		Model:          "claude-opus-4-1",
		PermissionMode: "plan",
		AllowedTools:   []string{"Read"},
		Env:            map[string]string{"A": "1"},
		MaxBufferSize:  2048,
	}

	options := NewOptions(
		WithAllowedTools("Grep"),
		config.Apply(),
	)

	assert.Equal(t, "claude-opus-4-1", options.Model)
	assert.Equal(t, PermissionModePlan, options.PermissionMode)
	assert.Equal(t, []string{"Grep", "Read"}, options.AllowedTools)
	assert.Equal(t, "1", options.Env["A"])
	assert.Equal(t, 2048, options.MaxBufferSize)
}

// TestConfigApplyLeavesUnsetFields verifies the overlay does not clobber
// options the file never mentions.
func TestConfigApplyLeavesUnsetFields(t *testing.T) {
	config := &FileConfig{Model: "claude-sonnet-4-5"}

	options := NewOptions(
		WithSystemPrompt("keep me"),
		config.Apply(),
	)

	assert.Equal(t, "claude-sonnet-4-5", options.Model)
	assert.Equal(t, "keep me", options.SystemPrompt)
}
