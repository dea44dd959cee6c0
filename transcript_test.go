package claudeagent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssistantText(sessionID, text string) AssistantMessage {
	msg := AssistantMessage{Type: "assistant", SessionID: sessionID}
	msg.Message.Role = "assistant"
	msg.Message.Content = []ContentBlock{{Type: "text", Text: text}}
	return msg
}

func TestTranscriptRecordAndRead(t *testing.T) {
	recorder, err := NewTranscriptRecorder(t.TempDir())
	require.NoError(t, err)
	defer recorder.Close()

	require.NoError(t, recorder.Record("s1", NewUserMessage("s1", "hello")))
	require.NoError(t, recorder.Record("s1", newAssistantText("s1", "hi there")))

	messages, err := recorder.Read("s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	user, ok := messages[0].(UserMessage)
	require.True(t, ok)
	assert.Equal(t, "s1", user.SessionID)

	assistant, ok := messages[1].(AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, "hi there", assistant.ContentText())
}

// TestTranscriptPendingFlush covers messages recorded before the CLI has
// assigned a session id: they are held and land at the front of the
// transcript once the id is known.
func TestTranscriptPendingFlush(t *testing.T) {
	recorder, err := NewTranscriptRecorder(t.TempDir())
	require.NoError(t, err)
	defer recorder.Close()

	require.NoError(t, recorder.Record("", NewUserMessage("", "first prompt")))
	require.NoError(t, recorder.Record("s2", newAssistantText("s2", "response")))

	messages, err := recorder.Read("s2")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].MessageType())
	assert.Equal(t, "assistant", messages[1].MessageType())
}

func TestTranscriptSessions(t *testing.T) {
	dir := t.TempDir()
	recorder, err := NewTranscriptRecorder(dir)
	require.NoError(t, err)
	defer recorder.Close()

	ids, err := recorder.Sessions()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, recorder.Record("beta", newAssistantText("beta", "b")))
	require.NoError(t, recorder.Record("alpha", newAssistantText("alpha", "a")))

	ids, err = recorder.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestTranscriptRemove(t *testing.T) {
	dir := t.TempDir()
	recorder, err := NewTranscriptRecorder(dir)
	require.NoError(t, err)
	defer recorder.Close()

	require.NoError(t, recorder.Record("gone", newAssistantText("gone", "x")))
	require.NoError(t, recorder.Remove("gone"))

	_, statErr := os.Stat(filepath.Join(dir, "gone.jsonl"))
	assert.True(t, os.IsNotExist(statErr))

	// Removing again is not an error.
	require.NoError(t, recorder.Remove("gone"))
}

func TestTranscriptReadMissingSession(t *testing.T) {
	recorder, err := NewTranscriptRecorder(t.TempDir())
	require.NoError(t, err)

	_, err = recorder.Read("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transcript")
}

func TestTranscriptRecordAfterClose(t *testing.T) {
	recorder, err := NewTranscriptRecorder(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, recorder.Record("s3", newAssistantText("s3", "before")))
	require.NoError(t, recorder.Close())
	require.NoError(t, recorder.Record("s3", newAssistantText("s3", "after")))

	messages, err := recorder.Read("s3")
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

// TestClientRecordsTranscript drives a scripted conversation and checks
// that both sides of it land in the transcript.
func TestClientRecordsTranscript(t *testing.T) {
	recorder, err := NewTranscriptRecorder(t.TempDir())
	require.NoError(t, err)
	defer recorder.Close()

	runner := NewMockSubprocessRunner()
	options := NewOptions(WithTranscript(recorder))
	transport := NewSubprocessTransportWithRunner(runner, options)
	client := NewClientWithTransport(transport, options)
	t.Cleanup(func() { client.Close() })

	cli := newScriptedCLI(t, runner)
	go func() {
		cli.answerInitialize()
		cli.next() // the user prompt
		cli.emit(`{"type":"system","subtype":"init","session_id":"t1"}`)
		cli.emit(`{"type":"assistant","session_id":"t1","message":{"role":"assistant","content":[{"type":"text","text":"done"}]}}`)
		cli.emit(`{"type":"result","subtype":"success","session_id":"t1"}`)
		cli.finish()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.SendMessage(ctx, "do the thing"))

	for _, err := range client.ReceiveResponse(ctx) {
		require.NoError(t, err)
	}

	messages, err := recorder.Read("t1")
	require.NoError(t, err)
	// user prompt, init record, assistant reply, result.
	require.Len(t, messages, 4)
	assert.Equal(t, "user", messages[0].MessageType())
	assert.Equal(t, "system", messages[1].MessageType())
	assert.Equal(t, "assistant", messages[2].MessageType())
	assert.Equal(t, "result", messages[3].MessageType())
}
