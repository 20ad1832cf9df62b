package rhi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// QueueType selects a device queue.
type QueueType uint8

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
)

func (t QueueType) String() string {
	switch t {
	case QueueGraphics:
		return "Graphics"
	case QueueCompute:
		return "Compute"
	case QueueTransfer:
		return "Transfer"
	default:
		return fmt.Sprintf("QueueType(%d)", uint8(t))
	}
}

// queueOwnership tracks who keeps the queue alive. An interior queue is
// owned by its device alone. An external queue has been handed out with
// Device.GetQueue and holds a device reference until released.
type queueOwnership uint8

const (
	ownershipInterior queueOwnership = iota
	ownershipExternal
)

type submission struct {
	seq     uint64
	buffers []*CommandBuffer
	fence   *Fence
	value   uint64

	err error
}

// Queue executes command buffers in submission order on one worker
// goroutine. Submit never blocks on execution; WaitOnHost and Fence.Wait are
// the only host waits.
//
// Every submission gets a sequence number. The worker advances completed
// as it finishes them, so any number of goroutines can wait for the work
// submitted before their call. Retiring finished submissions is separate
// from waiting: whichever host wait observes a submission as complete
// first retires it.
type Queue struct {
	device *Device
	typ    QueueType

	ownMu        sync.Mutex
	ownership    queueOwnership
	externalRefs int

	mu        sync.Mutex
	work      *sync.Cond // signaled when queued grows or the queue stops
	progress  *sync.Cond // broadcast when completed advances
	queued    []*submission
	pending   []*submission // executed or not, not yet retired
	submitted uint64
	completed uint64
	stopping  bool
	stopped   chan struct{}
}

func newQueue(d *Device, t QueueType) *Queue {
	q := &Queue{device: d, typ: t, stopped: make(chan struct{})}
	q.work = sync.NewCond(&q.mu)
	q.progress = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Type returns the queue type.
func (q *Queue) Type() QueueType { return q.typ }

// Device returns the owning device.
func (q *Queue) Device() *Device { return q.device }

func (q *Queue) acquire() {
	q.ownMu.Lock()
	defer q.ownMu.Unlock()
	if q.ownership == ownershipInterior {
		q.ownership = ownershipExternal
		q.device.Retain()
	}
	q.externalRefs++
}

// Release drops an owner obtained from Device.GetQueue. When the last one
// is gone the queue returns to device ownership and its device reference
// is released.
func (q *Queue) Release() {
	q.ownMu.Lock()
	if q.ownership != ownershipExternal {
		q.ownMu.Unlock()
		return
	}
	q.externalRefs--
	if q.externalRefs > 0 {
		q.ownMu.Unlock()
		return
	}
	q.ownership = ownershipInterior
	q.ownMu.Unlock()
	q.device.Release()
}

// Submit enqueues closed command buffers for execution. When fence is not
// nil it is signaled to value after the buffers have executed.
//
// Validation and claiming the buffers happen under the queue lock, and each
// heap checks its generation and counts the buffer in flight in one step,
// so a concurrent Reset or a second Submit of the same buffer fails cleanly.
func (q *Queue) Submit(buffers []*CommandBuffer, fence *Fence, value uint64) error {
	if err := q.device.checkLive(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopping {
		return ErrDeviceReleased
	}
	for i, cb := range buffers {
		switch {
		case cb == nil:
			return validationError("submit: command buffer %d is nil", i)
		case !cb.closed:
			return validationError("submit: command buffer %d is not closed", i)
		case cb.submitted || slices.Contains(buffers[:i], cb):
			return validationError("submit: command buffer %d was already submitted", i)
		case cb.retired:
			return validationError("submit: command buffer %d was released", i)
		case cb.device != q.device:
			return validationError("submit: command buffer %d belongs to another device", i)
		}
	}
	for i, cb := range buffers {
		if !cb.heap.acquire(cb.generation) {
			for _, prev := range buffers[:i] {
				prev.heap.release()
			}
			return validationError("submit: command buffer %d was recorded before its heap was reset", i)
		}
	}

	q.submitted++
	s := &submission{
		seq:     q.submitted,
		buffers: slices.Clone(buffers),
		fence:   fence,
		value:   value,
	}
	for _, cb := range s.buffers {
		cb.submitted = true
	}
	q.queued = append(q.queued, s)
	q.pending = append(q.pending, s)
	q.work.Signal()
	return nil
}

// WaitOnHost blocks until every submission made before the call has
// executed, then synchronizes the backend. It returns the execution errors
// of the submissions it retires joined together and releases the
// references their command buffers held. A submission is retired by
// exactly one host wait.
//
// If ctx ends first, the submissions that have not finished stay pending
// for the next call.
func (q *Queue) WaitOnHost(ctx context.Context) error {
	q.mu.Lock()
	target := q.submitted
	q.mu.Unlock()

	if err := q.waitFor(ctx, target); err != nil {
		return errors.Join(q.retireCompleted(), err)
	}
	syncErr := wrapBackend("synchronize", q.device.backend.Synchronize())
	return errors.Join(q.retireCompleted(), syncErr)
}

// waitFor blocks until the submission numbered seq has executed or ctx
// ends.
func (q *Queue) waitFor(ctx context.Context, seq uint64) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.progress.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.completed < seq {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.progress.Wait()
	}
	return nil
}

// retireCompleted releases every executed submission still pending and
// returns their errors.
func (q *Queue) retireCompleted() error {
	q.mu.Lock()
	n := 0
	for n < len(q.pending) && q.pending[n].seq <= q.completed {
		n++
	}
	done := slices.Clone(q.pending[:n])
	q.pending = slices.Delete(q.pending, 0, n)
	q.mu.Unlock()

	var errs []error
	for _, s := range done {
		if s.err != nil {
			errs = append(errs, s.err)
		}
	}
	q.retire(done)
	return errors.Join(errs...)
}

// WaitForFenceValuesOnDevice would make later submissions wait for fences
// on the device timeline. Backends here execute in submission order on one
// queue, so there is no device-side wait to express.
func (q *Queue) WaitForFenceValuesOnDevice(fences []*Fence, values []uint64) error {
	return fmt.Errorf("rhi: device fence wait: %w", ErrUnsupported)
}

func (q *Queue) retire(subs []*submission) {
	for _, s := range subs {
		for _, cb := range s.buffers {
			cb.retire()
			cb.heap.release()
		}
	}
}

// drain waits for every submission made so far without retiring anything.
func (q *Queue) drain() {
	q.mu.Lock()
	for target := q.submitted; q.completed < target; {
		q.progress.Wait()
	}
	q.mu.Unlock()
}

// stop executes what is queued, ends the worker and releases every pending
// submission.
func (q *Queue) stop() {
	q.mu.Lock()
	q.stopping = true
	q.work.Broadcast()
	q.mu.Unlock()
	<-q.stopped

	q.mu.Lock()
	subs := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, s := range subs {
		if s.err != nil {
			q.device.log.Warn("rhi: submission failed before device release", "err", s.err)
		}
	}
	q.retire(subs)
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		for len(q.queued) == 0 && !q.stopping {
			q.work.Wait()
		}
		if len(q.queued) == 0 {
			q.mu.Unlock()
			return
		}
		s := q.queued[0]
		q.queued[0] = nil
		q.queued = q.queued[1:]
		q.mu.Unlock()

		err := q.execute(s)
		if s.fence != nil {
			s.fence.signal(s.value)
		}

		q.mu.Lock()
		s.err = err
		q.completed = s.seq
		q.progress.Broadcast()
		q.mu.Unlock()
	}
}
