package claudeagent

import (
	"encoding/json"
	"strings"
)

// defaultMaxBufferSize bounds the amount of partial JSON the framer will
// accumulate before giving up on a record. 1 MiB.
const defaultMaxBufferSize = 1024 * 1024

// jsonFramer reassembles complete JSON records from a stream of line
// fragments.
//
// The CLI writes one JSON object per line, but large records can arrive
// split across multiple reads and a single read can contain several
// newline-separated objects. The framer accumulates fragments and attempts
// a parse after each one: on success the record is emitted and the buffer
// resets, on failure the fragment is assumed to be a prefix of a larger
// record and accumulation continues.
type jsonFramer struct {
	buffer  strings.Builder
	maxSize int
}

// newJSONFramer creates a framer with the given buffer ceiling. A ceiling
// of zero or less uses the default.
func newJSONFramer(maxSize int) *jsonFramer {
	if maxSize <= 0 {
		maxSize = defaultMaxBufferSize
	}
	return &jsonFramer{maxSize: maxSize}
}

// Feed processes one chunk of stream data and returns any complete records
// it yields, in input order.
//
// The chunk is split on newlines and each piece is appended to the partial
// buffer before a parse attempt. If the buffer exceeds the configured
// ceiling without producing a valid record, the buffer is discarded and an
// ErrJSONDecode is returned; the framer remains usable for subsequent input.
func (f *jsonFramer) Feed(chunk string) ([]json.RawMessage, error) {
	var records []json.RawMessage

	for _, fragment := range strings.Split(chunk, "\n") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}

		f.buffer.WriteString(fragment)

		if f.buffer.Len() > f.maxSize {
			size := f.buffer.Len()
			f.buffer.Reset()
			return records, &ErrJSONDecode{
				Message: "JSON message exceeded maximum buffer size",
				Size:    size,
			}
		}

		candidate := f.buffer.String()
		var probe json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
			// Incomplete record, keep accumulating.
			continue
		}

		f.buffer.Reset()
		records = append(records, json.RawMessage(candidate))
	}

	return records, nil
}

// Pending reports whether the framer holds a partial record.
func (f *jsonFramer) Pending() bool {
	return f.buffer.Len() > 0
}

// Reset discards any partial record.
func (f *jsonFramer) Reset() {
	f.buffer.Reset()
}
