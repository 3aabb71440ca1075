// Package headless owns the headless Chrome process used to render JavaScript-dependent pages.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBrowserClosed is returned by Acquire once the resource has been released.
var ErrBrowserClosed = errors.New("browser resource closed")

// State is the lifecycle position of a Resource.
type State int

// Lifecycle states. Closed is terminal.
const (
	Uninitialized State = iota
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Browser is a started browser process.
type Browser interface {
	// Render opens a tab, loads url, waits settle, and returns the document markup.
	Render(ctx context.Context, url string, settle time.Duration) (string, error)
	Close() error
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Resource lazily starts a single browser and tears it down on Release.
type Resource struct {
	mu       sync.Mutex
	state    State
	launcher Launcher
	browser  Browser
	logger   *zap.Logger
}

// NewResource returns an Uninitialized resource that starts browsers through launcher.
func NewResource(launcher Launcher, logger *zap.Logger) *Resource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resource{launcher: launcher, logger: logger}
}

// State reports the current lifecycle state.
func (r *Resource) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Acquire starts the browser on first use and returns the cached handle afterwards.
func (r *Resource) Acquire(ctx context.Context) (Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Running:
		return r.browser, nil
	case Closed:
		return nil, ErrBrowserClosed
	}
	if r.launcher == nil {
		return nil, errors.New("no browser launcher configured")
	}
	browser, err := r.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	r.browser = browser
	r.state = Running
	r.logger.Debug("browser started")
	return browser, nil
}

// Release terminates a running browser. It is a no-op unless the resource is Running.
func (r *Resource) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Running {
		return
	}
	if err := r.browser.Close(); err != nil {
		r.logger.Warn("browser close failed", zap.Error(err))
	}
	r.browser = nil
	r.state = Closed
	r.logger.Debug("browser released")
}

// Render acquires the browser and renders url with it.
func (r *Resource) Render(ctx context.Context, url string, settle time.Duration) (string, error) {
	browser, err := r.Acquire(ctx)
	if err != nil {
		return "", err
	}
	return browser.Render(ctx, url, settle)
}
