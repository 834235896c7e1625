package log

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// send audit events
const (
	defaultCacheCount = 64
	defaultFlowSize   = 8192
	flushInterval     = 5 * time.Second
	trackerPath       = "collect/tracker"
)

// Event one audit record: key created/revoked, request submitted/advanced
type Event struct {
	Key     string      `json:"key"`
	Owner   string      `json:"owner"`
	Ts      int64       `json:"ts"`
	Payload interface{} `json:"payload"`
	Source  string      `json:"source"`
}

// Recorder buffers audit events, writes them to logrus and, when a remote
// collector is configured, posts them in batches.
type Recorder struct {
	source     string
	monitor    *Monitor
	cacheTrace []*Event
	traceFlow  chan *Event
	closeTrace chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

func NewRecorder(remote, source string) *Recorder {
	r := &Recorder{
		source:     source,
		cacheTrace: make([]*Event, 0, defaultCacheCount),
		traceFlow:  make(chan *Event, defaultFlowSize),
		closeTrace: make(chan struct{}),
		done:       make(chan struct{}),
	}
	if remote != "" {
		r.monitor = NewMonitor(remote)
	}
	go r.consumeTrace()
	return r
}

// Record never blocks the caller, events are dropped when the buffer is full
func (r *Recorder) Record(key, owner string, payload interface{}) {
	event := &Event{
		Key:     key,
		Owner:   owner,
		Ts:      time.Now().UnixMilli(),
		Payload: payload,
		Source:  r.source,
	}
	select {
	case r.traceFlow <- event:
	default:
		logrus.WithFields(logrus.Fields{"key": key, "owner": owner}).Warn("audit buffer full, event dropped")
	}
}

func (r *Recorder) consumeTrace() {
	defer close(r.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case event := <-r.traceFlow:
			r.handle(event)
		case <-ticker.C:
			r.flush()
		case <-r.closeTrace:
			// drain what is already queued
			for {
				select {
				case event := <-r.traceFlow:
					r.handle(event)
				default:
					r.flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) handle(event *Event) {
	logrus.WithFields(logrus.Fields{
		"owner": event.Owner,
		"event": event.Key,
	}).Info("audit")
	if r.monitor == nil {
		return
	}
	if len(r.cacheTrace) >= defaultCacheCount {
		r.flush()
	}
	r.cacheTrace = append(r.cacheTrace, event)
}

func (r *Recorder) flush() {
	if r.monitor == nil || len(r.cacheTrace) == 0 {
		return
	}
	body, err := json.Marshal(r.cacheTrace)
	r.cacheTrace = r.cacheTrace[:0]
	if err != nil {
		logrus.Errorf("audit marshal err=%s", err.Error())
		return
	}
	if err := r.monitor.Post(body, trackerPath); err != nil {
		logrus.Warnf("audit post err=%s", err.Error())
	}
}

// Close stop consuming and send the remaining events
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.closeTrace)
		<-r.done
	})
}
