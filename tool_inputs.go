package claudeagent

import (
	"encoding/json"
)

// Typed inputs for the agent's built-in tools.
//
// Permission handlers and hooks receive tool input as map[string]any;
// DecodeToolInput converts it to one of these structs for safe field
// access:
//
//	handler := func(ctx context.Context, toolName string, input map[string]any,
//	    req claudeagent.PermissionRequest) (claudeagent.PermissionResult, error) {
//	    if toolName == "Bash" {
//	        bash, err := claudeagent.DecodeToolInput[claudeagent.BashInput](input)
//	        if err == nil && strings.HasPrefix(bash.Command, "rm ") {
//	            return claudeagent.PermissionDeny{Message: "no deletions"}, nil
//	        }
//	    }
//	    return claudeagent.PermissionAllow{}, nil
//	}

// BashInput is the input for the Bash tool.
type BashInput struct {
	Command         string `json:"command"`
	Timeout         *int   `json:"timeout,omitempty"`
	Description     string `json:"description,omitempty"`
	RunInBackground bool   `json:"run_in_background,omitempty"`
}

// FileEditInput is the input for the Edit tool.
type FileEditInput struct {
	FilePath   string `json:"file_path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

// FileReadInput is the input for the Read tool.
type FileReadInput struct {
	FilePath string `json:"file_path"`
	Offset   *int   `json:"offset,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
}

// FileWriteInput is the input for the Write tool.
type FileWriteInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// GlobInput is the input for the Glob tool.
type GlobInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// GrepInput is the input for the Grep tool.
type GrepInput struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path,omitempty"`
	Glob       string `json:"glob,omitempty"`
	OutputMode string `json:"output_mode,omitempty"`
}

// WebFetchInput is the input for the WebFetch tool.
type WebFetchInput struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt,omitempty"`
}

// DecodeToolInput converts a tool input map into a typed input struct.
func DecodeToolInput[T any](input map[string]any) (T, error) {
	var out T
	data, err := json.Marshal(input)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
