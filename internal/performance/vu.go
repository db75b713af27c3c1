// Package performance runs virtual users against the chess API.
package performance

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chess-vn/chessload/internal/scenario"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is inside an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU was retired and finishes its iteration.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is a single simulated user looping over scenario iterations.
//
// Retiring a VU (RequestStop) lets the current iteration finish, think-time
// included. Cancel aborts it through the VU's context.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	driver   *scenario.Driver
	client   *http.Client
	recorder scenario.Recorder

	ctx    context.Context
	cancel context.CancelFunc

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	stopCh chan struct{}
	doneCh chan struct{}

	iteration atomic.Int64
}

// NewVirtualUser creates a VU whose context derives from parent.
func NewVirtualUser(parent context.Context, id int, driver *scenario.Driver, client *http.Client, recorder scenario.Recorder) *VirtualUser {
	ctx, cancel := context.WithCancel(parent)
	return &VirtualUser{
		ID:       id,
		driver:   driver,
		client:   client,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Context returns the VU's context. It is done once the VU is cancelled.
func (vu *VirtualUser) Context() context.Context {
	return vu.ctx
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration executes one scenario iteration.
//
// Returns:
//   - nil if the iteration completed
//   - an error if the VU was already retired or its context was cancelled
func (vu *VirtualUser) RunIteration() error {
	if vu.IsStopping() {
		return fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	vu.iteration.Add(1)

	err := vu.driver.Iterate(vu.ctx, vu.client, vu.recorder)

	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	return err
}

// IsStopping reports whether the VU was retired or has stopped.
func (vu *VirtualUser) IsStopping() bool {
	s := vu.GetState()
	return s == VUStateStopping || s == VUStateStopped
}

// StopRequested returns a channel closed when the VU is retired.
func (vu *VirtualUser) StopRequested() <-chan struct{} {
	return vu.stopCh
}

// RequestStop retires the VU after its current iteration.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// Cancel aborts the VU's in-flight iteration.
func (vu *VirtualUser) Cancel() {
	vu.cancel()
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// Done returns a channel closed once the VU has stopped.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// MarkStopped marks the VU as fully stopped and releases its context.
// Should be called when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	prev := VUState(vu.state.Swap(int32(VUStateStopped)))
	if prev == VUStateStopped {
		return
	}
	if prev != VUStateStopping {
		close(vu.stopCh)
	}
	vu.cancel()
	close(vu.doneCh)
}
