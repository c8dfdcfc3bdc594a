package orchestrator

import (
	"slices"
	"sync"
	"time"

	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/extractor"
)

// Sink receives the progress events of one download. Calls never overlap.
type Sink interface {
	Emit(ev entity.ProgressEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev entity.ProgressEvent)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev entity.ProgressEvent) { f(ev) }

type fileProgress struct {
	done, total int64
}

type streamState struct {
	files        map[string]fileProgress
	done, total  int64
	mergeStarted bool
	complete     bool
}

// emitter serializes events and enforces their ordering rules: byte counts per
// stream never go down, a stream completes once, and exactly one terminal event
// is emitted, after which everything is dropped.
type emitter struct {
	mu       sync.Mutex
	sink     Sink
	now      func() time.Time
	terminal bool
	streams  map[string]*streamState
}

func newEmitter(sink Sink, now func() time.Time) *emitter {
	if sink == nil {
		sink = SinkFunc(func(entity.ProgressEvent) {})
	}

	return &emitter{
		sink:    sink,
		now:     now,
		streams: make(map[string]*streamState),
	}
}

func (e *emitter) stream(label string) *streamState {
	st := e.streams[label]
	if st == nil {
		st = &streamState{files: make(map[string]fileProgress)}
		e.streams[label] = st
	}

	return st
}

func (e *emitter) emit(ev entity.ProgressEvent) {
	ev.At = e.now()
	e.sink.Emit(ev)
}

// progress folds a backend report into the stream totals. Several files written
// by one call (video and audio of a merge) add up.
func (e *emitter) progress(label string, p extractor.Progress) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stream(label)
	if e.terminal || st.complete || st.mergeStarted {
		return
	}

	prev := st.files[p.Filename]
	st.files[p.Filename] = fileProgress{
		done:  max(prev.done, p.DownloadedBytes),
		total: max(prev.total, p.TotalBytes),
	}

	var done, total int64
	for _, f := range st.files {
		done += f.done
		total += f.total
	}

	st.done = max(st.done, done)
	st.total = max(st.total, total)

	e.emit(entity.ProgressEvent{
		Kind:       entity.EventDownloading,
		Stream:     label,
		BytesDone:  st.done,
		BytesTotal: st.total,
	})
}

func (e *emitter) mergeStarted(label string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stream(label)
	if e.terminal || st.mergeStarted {
		return
	}

	st.mergeStarted = true

	e.emit(entity.ProgressEvent{Kind: entity.EventMergeStarted, Stream: label})
}

// streamComplete returns the bytes counted for the stream.
func (e *emitter) streamComplete(label string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stream(label)
	if e.terminal || st.complete {
		return 0
	}

	st.complete = true

	e.emit(entity.ProgressEvent{
		Kind:       entity.EventStreamComplete,
		Stream:     label,
		BytesDone:  st.done,
		BytesTotal: st.total,
	})

	return st.done
}

// success and failure report whether this call was the terminal one.
func (e *emitter) success(outputs []string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminal {
		return false
	}

	e.terminal = true

	e.emit(entity.ProgressEvent{Kind: entity.EventSuccess, Outputs: slices.Clone(outputs)})

	return true
}

func (e *emitter) failure(err *errs.Error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminal {
		return false
	}

	e.terminal = true

	e.emit(entity.ProgressEvent{
		Kind:    entity.EventFailure,
		Failure: string(err.Kind),
		Message: errs.MessageOf(err),
	})

	return true
}
