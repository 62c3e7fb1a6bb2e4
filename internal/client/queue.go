package client

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/pointdeck/pointdeck/pkg/types"
)

const (
	// SubmissionTTL bounds how long an in-flight command waits for its
	// server echo before it is considered lost.
	SubmissionTTL = 30 * time.Second

	// OfflineTTL bounds how stale a queued-while-offline command may be
	// and still replay on reconnect.
	OfflineTTL = time.Hour

	DefaultQueueCap = 64
)

// QueuedCommand is one outbound message with its enqueue timestamp. Seq
// preserves submission order across persistence round trips.
type QueuedCommand struct {
	Seq        int64               `json:"seq"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
	Msg        types.ClientMessage `json:"msg"`
}

// Queue is a bounded FIFO of pending commands. When full, the oldest entry
// is evicted to admit the newest; expired entries are dropped on drain.
type Queue struct {
	cap   int
	ttl   time.Duration
	seq   int64
	items []QueuedCommand
}

func NewQueue(capacity int, ttl time.Duration) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCap
	}
	return &Queue{cap: capacity, ttl: ttl}
}

// Push appends a command, returning any entry evicted to make room.
func (q *Queue) Push(msg types.ClientMessage, now time.Time) (QueuedCommand, bool) {
	var evicted QueuedCommand
	var did bool
	if len(q.items) >= q.cap {
		evicted, did = q.items[0], true
		q.items = q.items[1:]
	}
	q.seq++
	q.items = append(q.items, QueuedCommand{Seq: q.seq, EnqueuedAt: now, Msg: msg})
	return evicted, did
}

// Drain empties the queue, returning unexpired entries in FIFO order.
func (q *Queue) Drain(now time.Time) []QueuedCommand {
	var live []QueuedCommand
	for _, qc := range q.items {
		if now.Sub(qc.EnqueuedAt) <= q.ttl {
			live = append(live, qc)
		}
	}
	q.items = nil
	return live
}

// Expire drops entries past the TTL without draining the rest.
func (q *Queue) Expire(now time.Time) int {
	kept := q.items[:0]
	dropped := 0
	for _, qc := range q.items {
		if now.Sub(qc.EnqueuedAt) <= q.ttl {
			kept = append(kept, qc)
		} else {
			dropped++
		}
	}
	q.items = kept
	return dropped
}

func (q *Queue) Len() int { return len(q.items) }

type queueBlob struct {
	Seq   int64           `json:"seq"`
	Items []QueuedCommand `json:"items"`
}

// Save persists the queue contents with their timestamps, so TTLs keep
// counting across restarts.
func (q *Queue) Save(bs BlobStore, key string) error {
	data, err := json.Marshal(queueBlob{Seq: q.seq, Items: q.items})
	if err != nil {
		return err
	}
	return bs.Save(key, data)
}

// Load restores a persisted queue. A missing blob yields the empty queue;
// a corrupt one is discarded the same way.
func (q *Queue) Load(bs BlobStore, key string, now time.Time) error {
	data, err := bs.Load(key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil
		}
		return err
	}
	var blob queueBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		q.items = nil
		return nil
	}
	q.seq = blob.Seq
	q.items = blob.Items
	q.Expire(now)
	return nil
}
