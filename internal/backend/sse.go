// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
)

const maxEventLine = 1 << 20

// Event is one server-sent event.
type Event struct {
	ID   string
	Name string
	Data []byte
}

// EventReader decodes a text/event-stream body.
type EventReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	stream  string

	closeOnce sync.Once
	closeErr  error
}

func newEventReader(stream string, body io.ReadCloser) *EventReader {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 4096), maxEventLine)
	return &EventReader{body: body, scanner: sc, stream: stream}
}

// Next blocks until the next event is dispatched. It returns io.EOF when the
// server ends the stream.
func (r *EventReader) Next() (Event, error) {
	var (
		ev      Event
		data    bytes.Buffer
		hasData bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if !hasData {
				ev = Event{}
				continue
			}
			ev.Data = bytes.TrimSuffix(data.Bytes(), []byte("\n"))
			streamEvents.WithLabelValues(r.stream).Inc()
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "event":
			ev.Name = value
		case "id":
			ev.ID = value
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// Close releases the underlying connection. It is safe to call more than once.
func (r *EventReader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.body.Close()
	})
	return r.closeErr
}
