package executor

import (
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
)

// Cancellations records cancel requests for running tasks. A request only
// takes effect when the executor reaches its checkpoint after the model call
// returns; it never interrupts the call itself.
type Cancellations struct {
	mu  sync.Mutex
	ids map[a2a.TaskID]struct{}
}

// NewCancellations creates an empty cancellation set.
func NewCancellations() *Cancellations {
	return &Cancellations{ids: make(map[a2a.TaskID]struct{})}
}

// Request marks taskID as canceled.
func (c *Cancellations) Request(taskID a2a.TaskID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[taskID] = struct{}{}
}

// Requested reports whether taskID has a pending cancel request.
func (c *Cancellations) Requested(taskID a2a.TaskID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[taskID]
	return ok
}

// Forget drops any request for taskID.
func (c *Cancellations) Forget(taskID a2a.TaskID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, taskID)
}

// Len returns the number of pending requests.
func (c *Cancellations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}
