/*
 * UBone - Event scheduler test cases
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

import "testing"

type recorder struct {
	fired []int
	at    []int
	clock int
}

func (r *recorder) cb(iarg int) {
	r.fired = append(r.fired, iarg)
	r.at = append(r.at, r.clock)
}

func (r *recorder) step(sched *Scheduler, n int) {
	for i := 0; i < n; i++ {
		r.clock++
		sched.Advance(1)
	}
}

func TestScheduleOrder(t *testing.T) {
	sched := NewScheduler()
	rec := &recorder{}

	sched.Schedule(rec, rec.cb, 30, 3)
	sched.Schedule(rec, rec.cb, 10, 1)
	sched.Schedule(rec, rec.cb, 20, 2)

	rec.step(sched, 35)

	if len(rec.fired) != 3 {
		t.Fatalf("fired %d events, want 3", len(rec.fired))
	}
	for i, want := range []int{1, 2, 3} {
		if rec.fired[i] != want {
			t.Errorf("event %d: got %d want %d", i, rec.fired[i], want)
		}
	}
	for i, want := range []int{10, 20, 30} {
		if rec.at[i] != want {
			t.Errorf("event %d fired at %d, want %d", i, rec.at[i], want)
		}
	}
}

func TestEqualTimeKeepsOrder(t *testing.T) {
	sched := NewScheduler()
	rec := &recorder{}

	for i := 1; i <= 4; i++ {
		sched.Schedule(rec, rec.cb, 5, i)
	}
	rec.step(sched, 5)

	for i, want := range []int{1, 2, 3, 4} {
		if rec.fired[i] != want {
			t.Errorf("event %d: got %d want %d", i, rec.fired[i], want)
		}
	}
}

func TestZeroDelayRunsNow(t *testing.T) {
	sched := NewScheduler()
	rec := &recorder{}

	sched.Schedule(rec, rec.cb, 0, 9)
	if len(rec.fired) != 1 || rec.fired[0] != 9 {
		t.Fatalf("zero delay not immediate: %v", rec.fired)
	}
	if !sched.Empty() {
		t.Error("scheduler should be empty")
	}
}

func TestCancel(t *testing.T) {
	sched := NewScheduler()
	rec := &recorder{}

	sched.Schedule(rec, rec.cb, 10, 1)
	sched.Schedule(rec, rec.cb, 20, 2)
	sched.Schedule(rec, rec.cb, 30, 3)
	sched.Cancel(rec, 2)

	rec.step(sched, 35)

	if len(rec.fired) != 2 {
		t.Fatalf("fired %d events, want 2: %v", len(rec.fired), rec.fired)
	}
	// Cancelling the middle event must not shift its successor.
	if rec.at[1] != 30 {
		t.Errorf("event 3 fired at %d, want 30", rec.at[1])
	}
}

func TestCancelOwner(t *testing.T) {
	sched := NewScheduler()
	recA := &recorder{}
	recB := &recorder{}

	sched.Schedule(recA, recA.cb, 5, 1)
	sched.Schedule(recB, recB.cb, 10, 2)
	sched.Schedule(recA, recA.cb, 15, 3)
	sched.CancelOwner(recA)

	recB.step(sched, 20)

	if len(recA.fired) != 0 {
		t.Errorf("cancelled owner fired: %v", recA.fired)
	}
	if len(recB.fired) != 1 || recB.at[0] != 10 {
		t.Errorf("survivor wrong: fired %v at %v", recB.fired, recB.at)
	}
}

func TestRescheduleFromCallback(t *testing.T) {
	sched := NewScheduler()
	rec := &recorder{}

	count := 0
	var again Callback
	again = func(iarg int) {
		rec.cb(iarg)
		count++
		if count < 3 {
			sched.Schedule(rec, again, 10, iarg+1)
		}
	}
	sched.Schedule(rec, again, 10, 1)

	rec.step(sched, 40)

	if len(rec.fired) != 3 {
		t.Fatalf("fired %d events, want 3", len(rec.fired))
	}
	for i, want := range []int{10, 20, 30} {
		if rec.at[i] != want {
			t.Errorf("event %d fired at %d, want %d", i, rec.at[i], want)
		}
	}
}

func TestAdvanceOvershoot(t *testing.T) {
	sched := NewScheduler()
	rec := &recorder{}

	sched.Schedule(rec, rec.cb, 3, 1)
	sched.Schedule(rec, rec.cb, 5, 2)

	sched.Advance(7)
	if len(rec.fired) != 2 {
		t.Fatalf("overshoot: fired %v", rec.fired)
	}
}
