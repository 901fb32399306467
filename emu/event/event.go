/*
 * UBone - Event scheduler
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package event

import "sync"

type Callback = func(iarg int)

// Events keep time relative to their predecessor, so advancing the
// clock only touches the head of the list.
type event struct {
	time  int // Ticks after the previous event
	owner any // Scheduling device, used for cancel
	cb    Callback
	iarg  int
	prev  *event
	next  *event
}

// Scheduler is a relative-time event list. Schedule and Cancel may be
// called from any goroutine, including from inside a callback; Advance
// is called by the bus clock.
type Scheduler struct {
	mu   sync.Mutex
	head *event
	tail *event
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule queues cb to run after delay ticks. A zero delay runs the
// callback immediately on the caller. Events with equal expiry keep
// their scheduling order.
func (sched *Scheduler) Schedule(owner any, cb Callback, delay int, iarg int) {
	if delay <= 0 {
		cb(iarg)
		return
	}

	ev := &event{owner: owner, cb: cb, time: delay, iarg: iarg}

	sched.mu.Lock()
	defer sched.mu.Unlock()

	evptr := sched.head
	if evptr == nil {
		sched.head = ev
		sched.tail = ev
		return
	}

	// Scan for the insertion point, keeping times relative.
	for evptr != nil {
		if ev.time < evptr.time {
			evptr.time -= ev.time
			ev.prev = evptr.prev
			ev.next = evptr
			evptr.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				sched.head = ev
			}
			return
		}
		ev.time -= evptr.time
		evptr = evptr.next
	}

	ev.prev = sched.tail
	sched.tail.next = ev
	sched.tail = ev
}

// Cancel removes the first queued event matching owner and iarg.
func (sched *Scheduler) Cancel(owner any, iarg int) {
	sched.mu.Lock()
	defer sched.mu.Unlock()

	for evptr := sched.head; evptr != nil; evptr = evptr.next {
		if evptr.owner != owner || evptr.iarg != iarg {
			continue
		}
		if evptr.next != nil {
			// Donate remaining time to the successor.
			evptr.next.time += evptr.time
			evptr.next.prev = evptr.prev
		} else {
			sched.tail = evptr.prev
		}
		if evptr.prev != nil {
			evptr.prev.next = evptr.next
		} else {
			sched.head = evptr.next
		}
		return
	}
}

// CancelOwner drops every queued event of an owner, used when a device
// is uninstalled.
func (sched *Scheduler) CancelOwner(owner any) {
	sched.mu.Lock()
	defer sched.mu.Unlock()

	evptr := sched.head
	for evptr != nil {
		next := evptr.next
		if evptr.owner == owner {
			if evptr.next != nil {
				evptr.next.time += evptr.time
				evptr.next.prev = evptr.prev
			} else {
				sched.tail = evptr.prev
			}
			if evptr.prev != nil {
				evptr.prev.next = evptr.next
			} else {
				sched.head = evptr.next
			}
		}
		evptr = next
	}
}

// Advance moves the clock forward t ticks and runs every event that
// expires. Callbacks run without the scheduler lock so they may
// reschedule.
func (sched *Scheduler) Advance(t int) {
	var due []*event

	sched.mu.Lock()
	if sched.head != nil {
		sched.head.time -= t
		for sched.head != nil && sched.head.time <= 0 {
			ev := sched.head
			sched.head = ev.next
			if sched.head != nil {
				// Expired head owes its (negative) remainder to the next event.
				sched.head.time += ev.time
				sched.head.prev = nil
			} else {
				sched.tail = nil
			}
			due = append(due, ev)
		}
	}
	sched.mu.Unlock()

	for _, ev := range due {
		ev.cb(ev.iarg)
	}
}

// Empty reports whether any event is queued.
func (sched *Scheduler) Empty() bool {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	return sched.head == nil
}
