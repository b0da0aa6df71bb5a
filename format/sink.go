package format

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Sink is the destination a writer session streams container bytes into.
// Container layouts in this module are append-only, so a sink never needs
// to seek.
type Sink interface {
	io.Writer
	io.Closer

	// ID returns the identifier the sink was opened with, typically a file path
	ID() string
}

// SinkOpener creates the sink for an output identifier
type SinkOpener func(id string) (Sink, error)

// OpenFileSink creates the file named by id, truncating any existing file.
// It is the default SinkOpener.
func OpenFileSink(id string) (Sink, error) {
	f, err := os.Create(id)
	if err != nil {
		return nil, err
	}
	return &fileSink{id: id, f: f}, nil
}

type fileSink struct {
	id string
	f  *os.File
}

var _ Sink = (*fileSink)(nil)

func (s *fileSink) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *fileSink) Close() error { return s.f.Close() }

func (s *fileSink) ID() string { return s.id }

// BufferSink is an in-memory Sink for tests and programmatic consumers
// that post-process container bytes themselves
type BufferSink struct {
	id     string
	buf    bytes.Buffer
	closed bool
}

var _ Sink = (*BufferSink)(nil)

// NewBufferSink creates an empty in-memory sink with the given identifier
func NewBufferSink(id string) *BufferSink {
	return &BufferSink{id: id}
}

// Write appends to the buffer; writes after Close fail
func (s *BufferSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("bioimage: write to closed sink %q", s.id)
	}
	return s.buf.Write(p)
}

// Close marks the sink closed. Closing twice is a no-op.
func (s *BufferSink) Close() error {
	s.closed = true
	return nil
}

// ID returns the sink identifier
func (s *BufferSink) ID() string { return s.id }

// Closed reports whether Close has been called
func (s *BufferSink) Closed() bool { return s.closed }

// Bytes returns the accumulated container bytes
func (s *BufferSink) Bytes() []byte { return s.buf.Bytes() }

// Len returns the number of bytes written so far
func (s *BufferSink) Len() int { return s.buf.Len() }

// SinkMap opens in-memory sinks and keeps every sink it opened addressable
// by identifier. Its Open method is a SinkOpener.
type SinkMap struct {
	sinks map[string]*BufferSink
}

// NewSinkMap creates an empty SinkMap
func NewSinkMap() *SinkMap {
	return &SinkMap{sinks: make(map[string]*BufferSink)}
}

// Open creates a fresh BufferSink for id, replacing any previous sink
// opened under the same identifier
func (m *SinkMap) Open(id string) (Sink, error) {
	s := NewBufferSink(id)
	m.sinks[id] = s
	return s, nil
}

// Get returns the sink opened under id, or nil
func (m *SinkMap) Get(id string) *BufferSink {
	return m.sinks[id]
}
