package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxEventSize bounds a single data line. Progress events carry a tag list,
// so the default scanner limit is too small for pathological items.
const maxEventSize = 1 << 20

// WriteEvent encodes payload as one text/event-stream data frame.
func WriteEvent(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + 8)
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	_, err = w.Write(buf.Bytes())
	return err
}

// ReadEvents decodes a text/event-stream body and calls fn for every data
// frame. Multi-line data fields are joined with newlines; comments and other
// fields are ignored. It returns fn's first error, or nil at end of stream.
func ReadEvents(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data []string
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		raw := strings.Join(data, "\n")
		data = data[:0]
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(raw), &head); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		return fn(Event{Type: head.Type, Raw: json.RawMessage(raw)})
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return flush()
}
