// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mi

import (
	"log/slog"
	"sync"
)

// Subscriber receives notify records from the Router. Notify is invoked on
// the session reader goroutine and must stay cheap; subscribers with real
// work hand off to a QueueSubscriber.
type Subscriber interface {
	Notify(rec Record)
}

// subKey identifies a subscription. An empty reason is the wildcard and
// matches every reason for the event.
type subKey struct {
	event  string
	reason string
}

// Router delivers unsolicited notify records to registered subscribers in
// two priority tiers. Records that match no subscriber are parked under
// their (event, reason) key for later synchronous retrieval.
type Router struct {
	mu       sync.Mutex
	highPrio map[subKey][]Subscriber
	normal   map[subKey][]Subscriber
	unrouted map[subKey]Record
	logger   *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		highPrio: make(map[subKey][]Subscriber),
		normal:   make(map[subKey][]Subscriber),
		unrouted: make(map[subKey]Record),
		logger:   logger,
	}
}

// Subscribe registers sub for the given event. An empty reason subscribes
// to all reasons. High-priority subscribers are notified before any
// normal-priority subscriber sees the record; within a tier, registration
// order is preserved.
func (r *Router) Subscribe(sub Subscriber, event, reason string, highPrio bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := subKey{event: event, reason: reason}
	if highPrio {
		r.highPrio[key] = append(r.highPrio[key], sub)
		return
	}
	r.normal[key] = append(r.normal[key], sub)
}

// Dispatch routes one notify record. A subscriber registered under several
// keys or tiers is invoked at most once, at its highest tier. Subscriber
// callbacks run outside the router lock.
func (r *Router) Dispatch(rec Record) {
	event := rec.Class
	reason := rec.Reason()

	seen := make(map[Subscriber]struct{})
	high := r.collect(r.highPrio, event, reason, seen)
	normal := r.collect(r.normal, event, reason, seen)

	for _, sub := range high {
		sub.Notify(rec)
	}
	for _, sub := range normal {
		sub.Notify(rec)
	}

	if len(high)+len(normal) == 0 {
		r.mu.Lock()
		r.unrouted[subKey{event: event, reason: reason}] = rec
		r.mu.Unlock()
		notificationsUnrouted.Inc()
	}
}

// collect snapshots the deduplicated subscriber list for (event, reason)
// under the lock, wildcard key first. seen is shared across tiers so a
// subscriber registered in both is delivered once, at its highest tier.
func (r *Router) collect(tier map[subKey][]Subscriber, event, reason string, seen map[Subscriber]struct{}) []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Subscriber
	for _, key := range []subKey{{event: event}, {event: event, reason: reason}} {
		for _, sub := range tier[key] {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}

// TakeUnrouted removes and returns the parked record for (event, reason),
// if any.
func (r *Router) TakeUnrouted(event, reason string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := subKey{event: event, reason: reason}
	rec, ok := r.unrouted[key]
	if ok {
		delete(r.unrouted, key)
	}
	return rec, ok
}

// QueueSubscriber adapts a processing function into a Subscriber backed by
// a bounded queue and a dedicated worker goroutine, so slow processing
// never stalls the session reader.
type QueueSubscriber struct {
	name    string
	queue   chan Record
	done    chan struct{}
	logger  *slog.Logger
	process func(rec Record) error
	closeMu sync.Mutex
	closed  bool
}

// NewQueueSubscriber creates the subscriber and starts its worker. Errors
// returned by process are logged, never propagated; a hook that must
// surface failures to the test flow records them through its own relay.
func NewQueueSubscriber(name string, logger *slog.Logger, buffer int, process func(rec Record) error) *QueueSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 64
	}
	q := &QueueSubscriber{
		name:    name,
		queue:   make(chan Record, buffer),
		done:    make(chan struct{}),
		logger:  logger,
		process: process,
	}
	go q.run()
	return q
}

// Notify implements Subscriber by enqueueing the record. A full queue
// sheds its oldest entry rather than stalling the caller, which runs on
// the router's dispatch path.
func (q *QueueSubscriber) Notify(rec Record) {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	for {
		select {
		case q.queue <- rec:
			return
		default:
		}
		select {
		case old := <-q.queue:
			subscriberDrops.WithLabelValues(q.name).Inc()
			q.logger.Warn("subscriber queue full, dropping oldest record",
				slog.String("subscriber", q.name),
				slog.String("class", old.Class))
		default:
			// worker drained the queue in the meantime; retry the send
		}
	}
}

func (q *QueueSubscriber) run() {
	defer close(q.done)
	for rec := range q.queue {
		if err := q.process(rec); err != nil {
			q.logger.Warn("notification processing failed",
				slog.String("subscriber", q.name),
				slog.Any("error", err))
		}
	}
}

// Close stops the worker after draining queued records.
func (q *QueueSubscriber) Close() {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closed = true
	close(q.queue)
	q.closeMu.Unlock()
	<-q.done
}
