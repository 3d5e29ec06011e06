// Package audit writes the append-only event log used for debugging and
// decision auditing. Each line has the form:
//
//	[2006-01-02T15:04:05Z] [TYPE] {"key":"value"}
//
// Delivery is best-effort: events are handed to a background writer through
// a buffered channel and dropped when the buffer is full. Audit failures
// never reach the primary control flow.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Event types recorded in the log.
const (
	TypeGate      = "GATE"
	TypeReply     = "REPLY"
	TypeCondense  = "CONDENSE"
	TypeTool      = "TOOL"
	TypePersist   = "PERSIST"
	TypeError     = "ERROR"
	TypeLifecycle = "LIFECYCLE"
)

type event struct {
	at      time.Time
	kind    string
	details map[string]any
}

// Log is an asynchronous audit sink backed by a single writer goroutine.
type Log struct {
	mu     sync.RWMutex
	done   bool
	ch     chan event
	w      io.WriteCloser
	wg     sync.WaitGroup
	closed sync.Once
}

// New creates a Log writing to path with size-based rotation.
func New(path string) *Log {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
	}
	return newWithWriter(w)
}

func newWithWriter(w io.WriteCloser) *Log {
	l := &Log{
		ch: make(chan event, 256),
		w:  w,
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Record enqueues one event. Never blocks; a full buffer drops the event,
// and events after Close are discarded.
func (l *Log) Record(kind string, details map[string]any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.done {
		return
	}
	select {
	case l.ch <- event{at: time.Now().UTC(), kind: kind, details: details}:
	default:
	}
}

// Close drains pending events and closes the underlying writer.
func (l *Log) Close() {
	l.closed.Do(func() {
		l.mu.Lock()
		l.done = true
		close(l.ch)
		l.mu.Unlock()
		l.wg.Wait()
		_ = l.w.Close()
	})
}

func (l *Log) run() {
	defer l.wg.Done()
	for ev := range l.ch {
		if _, err := l.w.Write([]byte(FormatLine(ev.at, ev.kind, ev.details))); err != nil {
			log.Warn().Err(err).Msg("audit write failed")
		}
	}
}

// FormatLine renders one audit line including the trailing newline.
func FormatLine(at time.Time, kind string, details map[string]any) string {
	b, err := json.Marshal(details)
	if err != nil {
		b = []byte("{}")
	}
	return fmt.Sprintf("[%s] [%s] %s\n", at.Format(time.RFC3339), kind, b)
}
