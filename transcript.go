package claudeagent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// TranscriptRecorder persists conversation messages as JSON lines on disk.
//
// Each session gets its own file at {baseDir}/{sessionID}.jsonl, one
// message per line in the same wire format the CLI emits. Transcripts can
// be read back with Read, which reparses every line through ParseMessage.
//
// Recording is best effort from the client's point of view: a recorder
// attached via WithTranscript never blocks or fails the message stream.
type TranscriptRecorder struct {
	baseDir string

	mu      sync.Mutex
	files   map[string]*os.File
	pending []Message
}

// NewTranscriptRecorder creates a recorder rooted at baseDir.
//
// An empty baseDir defaults to ~/.claude-agent/transcripts. The directory
// is created on first write, not here.
func NewTranscriptRecorder(baseDir string) (*TranscriptRecorder, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".claude-agent", "transcripts")
	}

	return &TranscriptRecorder{
		baseDir: baseDir,
		files:   make(map[string]*os.File),
	}, nil
}

// sessionFile returns the transcript path for a session.
func (r *TranscriptRecorder) sessionFile(sessionID string) string {
	return filepath.Join(r.baseDir, sessionID+".jsonl")
}

// Record appends one message to the session's transcript.
//
// Messages recorded before the session id is known (the CLI assigns it in
// the init record) may be passed with an empty sessionID; they are held in
// memory and flushed to the front of the transcript once the first message
// with a real id arrives.
func (r *TranscriptRecorder) Record(sessionID string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID == "" {
		r.pending = append(r.pending, msg)
		return nil
	}

	file, err := r.fileLocked(sessionID)
	if err != nil {
		return err
	}

	for _, held := range r.pending {
		if err := writeTranscriptLine(file, held); err != nil {
			return err
		}
	}
	r.pending = nil

	return writeTranscriptLine(file, msg)
}

// fileLocked returns the open append handle for a session, creating the
// transcript directory and file on first use. Caller must hold r.mu.
func (r *TranscriptRecorder) fileLocked(sessionID string) (*os.File, error) {
	if file, ok := r.files[sessionID]; ok {
		return file, nil
	}

	if err := os.MkdirAll(r.baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	path := r.sessionFile(sessionID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}

	r.files[sessionID] = file
	return file, nil
}

func writeTranscriptLine(file *os.File, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript message: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transcript line: %w", err)
	}
	return nil
}

// Read loads a session's transcript and reparses each line into a Message.
func (r *TranscriptRecorder) Read(sessionID string) ([]Message, error) {
	data, err := os.ReadFile(r.sessionFile(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no transcript for session %s", sessionID)
		}
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}

	var messages []Message
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		msg, err := ParseMessage([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("failed to parse transcript line: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// Sessions lists the session ids that have a transcript on disk, sorted.
func (r *TranscriptRecorder) Sessions() ([]string, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	sort.Strings(ids)

	return ids, nil
}

// Remove deletes a session's transcript.
func (r *TranscriptRecorder) Remove(sessionID string) error {
	r.mu.Lock()
	if file, ok := r.files[sessionID]; ok {
		file.Close()
		delete(r.files, sessionID)
	}
	r.mu.Unlock()

	if err := os.Remove(r.sessionFile(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove transcript file: %w", err)
	}
	return nil
}

// Close flushes nothing (writes are unbuffered) but releases all open file
// handles. The recorder can keep recording after Close; files reopen on
// demand.
func (r *TranscriptRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, file := range r.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.files, id)
	}
	return firstErr
}
