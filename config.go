package claudeagent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is a session configuration loaded from a YAML file.
//
// Config files let deployments share agent settings without recompiling:
//
//	model: claude-sonnet-4-5
//	system-prompt: You are a code reviewer.
//	permission-mode: acceptEdits
//	allowed-tools:
//	  - Read
//	  - Grep
//	mcp-servers:
//	  docs:
//	    command: docs-mcp
//	    args: ["--root", "/srv/docs"]
type FileConfig struct {
	Model              string   `yaml:"model,omitempty"`
	SystemPrompt       string   `yaml:"system-prompt,omitempty"`
	AppendSystemPrompt string   `yaml:"append-system-prompt,omitempty"`
	PermissionMode     string   `yaml:"permission-mode,omitempty"`
	AllowedTools       []string `yaml:"allowed-tools,omitempty"`
	DisallowedTools    []string `yaml:"disallowed-tools,omitempty"`
	MaxTurns           int      `yaml:"max-turns,omitempty"`
	Cwd                string   `yaml:"cwd,omitempty"`
	AddDirs            []string `yaml:"add-dirs,omitempty"`
	CLIPath            string   `yaml:"cli-path,omitempty"`
	Settings           string   `yaml:"settings,omitempty"`

	Env map[string]string `yaml:"env,omitempty"`

	MCPServers map[string]MCPServerConfig `yaml:"mcp-servers,omitempty"`

	MaxBufferSize int `yaml:"max-buffer-size,omitempty"`
}

// validPermissionModes guards against typos in config files; an invalid
// mode would otherwise only fail once the CLI rejects it.
var validPermissionModes = map[string]bool{
	"":                                      true,
	string(PermissionModeDefault):           true,
	string(PermissionModeAcceptEdits):       true,
	string(PermissionModePlan):              true,
	string(PermissionModeBypassPermissions): true,
}

// LoadConfigFile reads and validates a YAML config file.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &ErrInvalidConfiguration{
			Field:  path,
			Reason: fmt.Sprintf("invalid YAML: %v", err),
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration for values the CLI would reject.
func (c *FileConfig) Validate() error {
	if !validPermissionModes[c.PermissionMode] {
		return &ErrInvalidConfiguration{
			Field:  "permission-mode",
			Reason: fmt.Sprintf("unknown mode: %s", c.PermissionMode),
		}
	}
	if c.MaxTurns < 0 {
		return &ErrInvalidConfiguration{
			Field:  "max-turns",
			Reason: "must not be negative",
		}
	}
	if c.MaxBufferSize < 0 {
		return &ErrInvalidConfiguration{
			Field:  "max-buffer-size",
			Reason: "must not be negative",
		}
	}
	for name, server := range c.MCPServers {
		if server.Command == "" && server.URL == "" {
			return &ErrInvalidConfiguration{
				Field:  "mcp-servers." + name,
				Reason: "requires either command or url",
			}
		}
	}
	return nil
}

// Apply returns an Option that overlays the file configuration onto the
// session options. Only fields set in the file are applied, so it composes
// with other options:
//
//	config, err := claudeagent.LoadConfigFile("agent.yaml")
//	...
//	client, err := claudeagent.NewClient(
//	    config.Apply(),
//	    claudeagent.WithCanUseTool(handler),
//	)
func (c *FileConfig) Apply() Option {
	return func(o *Options) {
		if c.Model != "" {
			o.Model = c.Model
		}
		if c.SystemPrompt != "" {
			o.SystemPrompt = c.SystemPrompt
		}
		if c.AppendSystemPrompt != "" {
			o.AppendSystemPrompt = c.AppendSystemPrompt
		}
		if c.PermissionMode != "" {
			o.PermissionMode = PermissionMode(c.PermissionMode)
		}
		if len(c.AllowedTools) > 0 {
			o.AllowedTools = append(o.AllowedTools, c.AllowedTools...)
		}
		if len(c.DisallowedTools) > 0 {
			o.DisallowedTools = append(o.DisallowedTools, c.DisallowedTools...)
		}
		if c.MaxTurns > 0 {
			o.MaxTurns = c.MaxTurns
		}
		if c.Cwd != "" {
			o.Cwd = c.Cwd
		}
		if len(c.AddDirs) > 0 {
			o.AddDirs = append(o.AddDirs, c.AddDirs...)
		}
		if c.CLIPath != "" {
			o.CLIPath = c.CLIPath
		}
		if c.Settings != "" {
			o.Settings = c.Settings
		}
		if len(c.Env) > 0 {
			if o.Env == nil {
				o.Env = make(map[string]string)
			}
			for k, v := range c.Env {
				o.Env[k] = v
			}
		}
		if len(c.MCPServers) > 0 {
			if o.MCPServers == nil {
				o.MCPServers = make(map[string]MCPServerConfig)
			}
			for name, server := range c.MCPServers {
				o.MCPServers[name] = server
			}
		}
		if c.MaxBufferSize > 0 {
			o.MaxBufferSize = c.MaxBufferSize
		}
	}
}
