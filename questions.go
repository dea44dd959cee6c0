package claudeagent

import (
	"context"
	"encoding/json"
	"fmt"
)

// askUserQuestionTool is the CLI tool the agent invokes to ask the user a
// question mid-turn. Its permission check doubles as the answer channel:
// the handler's updatedInput carries the selected answers.
const askUserQuestionTool = "AskUserQuestion"

// Answers maps question identifiers ("q_0", "q_1", ...) to the selected
// option labels or freeform text.
type Answers map[string]string

// QuestionOption is one selectable choice for a question.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// QuestionItem is a single question posed by the agent.
type QuestionItem struct {
	Question    string           `json:"question"`
	Header      string           `json:"header,omitempty"`
	Options     []QuestionOption `json:"options,omitempty"`
	MultiSelect bool             `json:"multiSelect,omitempty"`
}

// QuestionSet contains the questions from one AskUserQuestion invocation.
// The agent can ask up to four questions at once.
type QuestionSet struct {
	Questions []QuestionItem
}

// Answer builds an Answers map for a single question by index.
func (qs QuestionSet) Answer(index int, value string) Answers {
	return Answers{fmt.Sprintf("q_%d", index): value}
}

// SelectOption answers question index with one of its options by position.
// Out-of-range indexes produce an empty answer.
func (qs QuestionSet) SelectOption(index, optionIndex int) Answers {
	key := fmt.Sprintf("q_%d", index)
	if index < 0 || index >= len(qs.Questions) {
		return Answers{key: ""}
	}
	options := qs.Questions[index].Options
	if optionIndex < 0 || optionIndex >= len(options) {
		return Answers{key: ""}
	}
	return Answers{key: options[optionIndex].Label}
}

// Merge combines several Answers maps into one.
func (qs QuestionSet) Merge(answers ...Answers) Answers {
	merged := make(Answers)
	for _, set := range answers {
		for k, v := range set {
			merged[k] = v
		}
	}
	return merged
}

// QuestionHandler answers a QuestionSet posed by the agent.
type QuestionHandler func(ctx context.Context, qs QuestionSet) (Answers, error)

// parseQuestionSet extracts the questions from an AskUserQuestion tool
// input.
func parseQuestionSet(input map[string]any) (QuestionSet, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return QuestionSet{}, err
	}
	var decoded struct {
		Questions []QuestionItem `json:"questions"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return QuestionSet{}, err
	}
	return QuestionSet{Questions: decoded.Questions}, nil
}

// WithQuestionHandler routes the agent's AskUserQuestion invocations to the
// given handler.
//
// The answers are delivered through the tool's permission check: the tool
// is allowed with its input rewritten to carry the chosen answers. Install
// at most one of WithQuestionHandler and WithCanUseTool; to combine both
// behaviors, dispatch on the tool name inside a single permission handler.
func WithQuestionHandler(handler QuestionHandler) Option {
	return WithCanUseTool(func(
		ctx context.Context,
		toolName string,
		input map[string]any,
		req PermissionRequest,
	) (PermissionResult, error) {
		if toolName != askUserQuestionTool {
			return PermissionAllow{}, nil
		}

		qs, err := parseQuestionSet(input)
		if err != nil {
			return nil, fmt.Errorf("malformed %s input: %w", askUserQuestionTool, err)
		}

		answers, err := handler(ctx, qs)
		if err != nil {
			return nil, err
		}

		updated := make(map[string]any, len(input)+1)
		for k, v := range input {
			updated[k] = v
		}
		updated["answers"] = answers
		return PermissionAllow{UpdatedInput: updated}, nil
	})
}
