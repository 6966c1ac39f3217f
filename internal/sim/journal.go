package sim

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	JournalBufferSize      = 1024                   // Pending events before drops
	MaxJournalEventsPerSec = 5000                   // Global rate limit
	MaxEventsPerSource     = 50                     // Per obstacle/field rate limit per second
	JournalFlushSize       = 64                     // Events per batch write
	JournalFlushInterval   = 100 * time.Millisecond // How often to flush
	SourceLimiterCleanup   = 5 * time.Minute        // Cleanup interval for source limiters
)

// Journal is a bounded, rate-limited NDJSON log of navigation events.
// A moving obstacle that spams updates is throttled per source so it
// cannot crowd the rest of the journal out.
type Journal struct {
	events chan Event
	seq    atomic.Uint64

	globalLimiter  *rate.Limiter
	sourceLimiters sync.Map // map[string]*sourceLimiterEntry

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	out   io.Writer
	file  *os.File
	outMu sync.Mutex

	dropped atomic.Uint64
	total   atomic.Uint64
}

type sourceLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// NewJournal creates a stopped journal.
func NewJournal() *Journal {
	return &Journal{
		events:        make(chan Event, JournalBufferSize),
		globalLimiter: rate.NewLimiter(MaxJournalEventsPerSec, MaxJournalEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append and begins the writer goroutines.
// An empty path keeps counting events without writing them.
func (j *Journal) Start(filePath string) error {
	if filePath == "" {
		return j.StartWriter(nil)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	j.file = file
	return j.StartWriter(file)
}

// StartWriter begins writing to w.
func (j *Journal) StartWriter(w io.Writer) error {
	if j.running.Swap(true) {
		return nil
	}
	j.out = w
	j.wg.Add(2)
	go j.writerLoop()
	go j.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the file.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.running.Store(false)
		close(j.stopChan)
		j.wg.Wait()

		j.outMu.Lock()
		if j.file != nil {
			j.file.Close()
		}
		j.outMu.Unlock()
	})
}

// Emit queues an event. Returns false if rate limited, stopped or full.
func (j *Journal) Emit(event Event) bool {
	if !j.running.Load() {
		return false
	}

	if !j.globalLimiter.Allow() {
		j.dropped.Add(1)
		return false
	}
	if event.Source != "" && !j.sourceLimiter(event.Source).Allow() {
		j.dropped.Add(1)
		return false
	}

	event.Sequence = j.seq.Add(1)
	select {
	case j.events <- event:
		j.total.Add(1)
		return true
	default:
		j.dropped.Add(1)
		return false
	}
}

// EmitSimple builds and emits an event.
func (j *Journal) EmitSimple(eventType EventType, tickNum uint64, source string, payload interface{}) bool {
	return j.Emit(NewEvent(eventType, tickNum, source, payload))
}

func (j *Journal) sourceLimiter(source string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := j.sourceLimiters.Load(source); ok {
		e := v.(*sourceLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &sourceLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerSource, MaxEventsPerSource/5)}
	entry.lastUsed.Store(now)
	actual, _ := j.sourceLimiters.LoadOrStore(source, entry)
	return actual.(*sourceLimiterEntry).limiter
}

func (j *Journal) writerLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(JournalFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, JournalFlushSize)
	for {
		select {
		case <-j.stopChan:
			for {
				batch = j.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				j.flushBatch(batch)
			}
		case <-ticker.C:
			batch = j.collectBatch(batch[:0])
			if len(batch) > 0 {
				j.flushBatch(batch)
			}
		}
	}
}

func (j *Journal) cleanupLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(SourceLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.cleanupSourceLimiters()
		}
	}
}

func (j *Journal) cleanupSourceLimiters() {
	cutoff := time.Now().Add(-SourceLimiterCleanup).UnixNano()
	j.sourceLimiters.Range(func(key, value interface{}) bool {
		if value.(*sourceLimiterEntry).lastUsed.Load() < cutoff {
			j.sourceLimiters.Delete(key)
		}
		return true
	})
}

func (j *Journal) collectBatch(batch []Event) []Event {
	for len(batch) < JournalFlushSize {
		select {
		case e := <-j.events:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

// flushBatch writes newline-delimited JSON.
func (j *Journal) flushBatch(batch []Event) {
	j.outMu.Lock()
	defer j.outMu.Unlock()

	if j.out == nil {
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		j.out.Write(append(data, '\n'))
	}
}

// GetStats returns counters for monitoring.
func (j *Journal) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total":   j.total.Load(),
		"dropped": j.dropped.Load(),
		"pending": len(j.events),
		"running": j.running.Load(),
	}
}

// GetDroppedCount returns the number of dropped events.
func (j *Journal) GetDroppedCount() uint64 { return j.dropped.Load() }

// GetTotalCount returns the number of accepted events.
func (j *Journal) GetTotalCount() uint64 { return j.total.Load() }
