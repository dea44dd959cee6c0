package claudeagent

import (
	"github.com/rs/zerolog"
)

// Options holds configuration for an agent session.
//
// Options are provided via functional options passed to NewClient or Query.
// All fields have sensible defaults and can be selectively overridden.
type Options struct {
	// SystemPrompt replaces the CLI's default system prompt.
	SystemPrompt string

	// AppendSystemPrompt is appended to the default system prompt instead
	// of replacing it.
	AppendSystemPrompt string

	// Model selects the model to use. Empty uses the CLI default.
	Model string

	// CLIPath is the path to the agent CLI executable. If empty, the CLI
	// is discovered from PATH and common install locations.
	CLIPath string

	// Cwd is the working directory for the subprocess.
	Cwd string

	// AddDirs are additional directories the agent can access.
	AddDirs []string

	// Env holds extra environment variables for the CLI subprocess.
	Env map[string]string

	// PermissionMode controls tool execution permissions.
	PermissionMode PermissionMode

	// AllowedTools and DisallowedTools restrict which tools the agent may
	// use without prompting.
	AllowedTools    []string
	DisallowedTools []string

	// MaxTurns bounds the number of conversation turns. Zero means no
	// limit.
	MaxTurns int

	// ContinueConversation resumes the most recent conversation.
	ContinueConversation bool

	// Resume resumes a specific session by ID.
	Resume string

	// Settings is a path to a settings file passed to the CLI.
	Settings string

	// IncludePartialMessages enables stream_event delta messages.
	IncludePartialMessages bool

	// CanUseTool is consulted before each tool execution. When set, the
	// CLI routes permission prompts over the control channel.
	CanUseTool PermissionHandler

	// Hooks register lifecycle callbacks, keyed by event.
	Hooks map[HookEvent][]HookMatcher

	// MCPServers configure external MCP servers, keyed by server name.
	MCPServers map[string]MCPServerConfig

	// SDKMCPServers are in-process tool servers, keyed by server name.
	// Their traffic is routed back over the control channel instead of a
	// separate subprocess.
	SDKMCPServers map[string]*MCPToolServer

	// MaxBufferSize bounds the JSON framing buffer. Zero uses the 1 MiB
	// default.
	MaxBufferSize int

	// ExtraArgs passes arbitrary flags to the CLI. A nil value emits a
	// boolean flag, a non-nil value emits --flag value.
	ExtraArgs map[string]*string

	// Transcript, when set, records every conversation message to disk
	// as it flows through the client.
	Transcript *TranscriptRecorder

	// Logger receives debug output. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// MCPServerConfig describes an external MCP server the CLI should connect
// to. Stdio servers set Command/Args/Env; HTTP and SSE servers set URL and
// optionally Headers.
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Option is a functional option for configuring a session.
type Option func(*Options)

// NewOptions creates Options with defaults, applying the given options.
func NewOptions(opts ...Option) *Options {
	options := &Options{
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) { o.SystemPrompt = prompt }
}

// WithAppendSystemPrompt appends to the default system prompt.
func WithAppendSystemPrompt(prompt string) Option {
	return func(o *Options) { o.AppendSystemPrompt = prompt }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithCLIPath sets an explicit CLI executable path.
func WithCLIPath(path string) Option {
	return func(o *Options) { o.CLIPath = path }
}

// WithCwd sets the subprocess working directory.
func WithCwd(cwd string) Option {
	return func(o *Options) { o.Cwd = cwd }
}

// WithAddDirs grants the agent access to additional directories.
func WithAddDirs(dirs ...string) Option {
	return func(o *Options) { o.AddDirs = append(o.AddDirs, dirs...) }
}

// WithEnv adds environment variables for the subprocess.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithPermissionMode sets the permission mode.
func WithPermissionMode(mode PermissionMode) Option {
	return func(o *Options) { o.PermissionMode = mode }
}

// WithAllowedTools restricts the agent to the given tools.
func WithAllowedTools(tools ...string) Option {
	return func(o *Options) { o.AllowedTools = append(o.AllowedTools, tools...) }
}

// WithDisallowedTools blocks the given tools.
func WithDisallowedTools(tools ...string) Option {
	return func(o *Options) { o.DisallowedTools = append(o.DisallowedTools, tools...) }
}

// WithMaxTurns bounds the number of conversation turns.
func WithMaxTurns(n int) Option {
	return func(o *Options) { o.MaxTurns = n }
}

// WithContinueConversation resumes the most recent conversation.
func WithContinueConversation() Option {
	return func(o *Options) { o.ContinueConversation = true }
}

// WithResume resumes the session with the given ID.
func WithResume(sessionID string) Option {
	return func(o *Options) { o.Resume = sessionID }
}

// WithSettings passes a settings file to the CLI.
func WithSettings(path string) Option {
	return func(o *Options) { o.Settings = path }
}

// WithPartialMessages enables stream_event delta messages.
func WithPartialMessages() Option {
	return func(o *Options) { o.IncludePartialMessages = true }
}

// WithCanUseTool registers a permission handler for tool execution.
func WithCanUseTool(handler PermissionHandler) Option {
	return func(o *Options) { o.CanUseTool = handler }
}

// WithHook registers hook callbacks for an event with an optional matcher
// pattern.
func WithHook(event HookEvent, matcher string, callbacks ...HookCallback) Option {
	return func(o *Options) {
		if o.Hooks == nil {
			o.Hooks = make(map[HookEvent][]HookMatcher)
		}
		o.Hooks[event] = append(o.Hooks[event], HookMatcher{
			Matcher: matcher,
			Hooks:   callbacks,
		})
	}
}

// WithMCPServer configures an external MCP server.
func WithMCPServer(name string, config MCPServerConfig) Option {
	return func(o *Options) {
		if o.MCPServers == nil {
			o.MCPServers = make(map[string]MCPServerConfig)
		}
		o.MCPServers[name] = config
	}
}

// WithSDKMCPServer registers an in-process tool server.
func WithSDKMCPServer(server *MCPToolServer) Option {
	return func(o *Options) {
		if o.SDKMCPServers == nil {
			o.SDKMCPServers = make(map[string]*MCPToolServer)
		}
		o.SDKMCPServers[server.Name()] = server
	}
}

// WithMaxBufferSize bounds the JSON framing buffer.
func WithMaxBufferSize(size int) Option {
	return func(o *Options) { o.MaxBufferSize = size }
}

// WithExtraArg passes an arbitrary flag to the CLI. A nil value emits a
// boolean flag.
func WithExtraArg(flag string, value *string) Option {
	return func(o *Options) {
		if o.ExtraArgs == nil {
			o.ExtraArgs = make(map[string]*string)
		}
		o.ExtraArgs[flag] = value
	}
}

// WithTranscript records conversation messages to disk as they arrive.
func WithTranscript(recorder *TranscriptRecorder) Option {
	return func(o *Options) { o.Transcript = recorder }
}

// WithLogger sets the debug logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}
