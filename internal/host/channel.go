// Package host implements the boundary to the host application: the
// live in-process channel for outbound notifications and the bridge
// exposing the operations a host may invoke against the pipeline.
package host

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"mpesa-capture/internal/dispatch"
)

// NotificationFunc receives one named outbound notification while the
// host application is attached.
type NotificationFunc func(ctx context.Context, method string, payload any) error

// Channel is the explicit live-channel handle handed to the dispatch
// coordinator at construction time. The host application attaches and
// detaches through the lifecycle methods; availability is re-checked on
// every use, never cached by callers.
type Channel struct {
	mu      sync.RWMutex
	handler NotificationFunc
	log     zerolog.Logger
}

// NewChannel creates a detached channel handle.
func NewChannel(log zerolog.Logger) *Channel {
	return &Channel{log: log}
}

// Attach connects a running host application. Attaching replaces any
// previous handler.
func (c *Channel) Attach(h NotificationFunc) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	c.log.Info().Msg("Host channel attached")
}

// Detach disconnects the host application. Subsequent Invoke calls
// fail with dispatch.ErrNotAttached until the next Attach.
func (c *Channel) Detach() {
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
	c.log.Info().Msg("Host channel detached")
}

// Attached implements dispatch.HostChannel.
func (c *Channel) Attached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler != nil
}

// Invoke implements dispatch.HostChannel.
func (c *Channel) Invoke(ctx context.Context, method string, payload any) error {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()

	if h == nil {
		return dispatch.ErrNotAttached
	}
	return h(ctx, method, payload)
}

var _ dispatch.HostChannel = (*Channel)(nil)
