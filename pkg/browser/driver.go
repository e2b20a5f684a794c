// Package browser wraps the headless browser a scan drives. The Driver
// interface is what the consent protocol, collector and detectors depend on;
// ChromeDriver implements it with chromedp.
package browser

import (
	"context"
	"time"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// Frame is one node of the page's frame tree.
type Frame struct {
	ID       string
	ParentID string
	URL      string
	Depth    int // 0 for the main frame
}

// Driver is one isolated browser session with a single tab.
type Driver interface {
	// Navigate loads url and waits for the load event, bounded by the navigation timeout.
	Navigate(ctx context.Context, url string) error
	// Reload reloads the current page, bounded by the navigation timeout.
	Reload(ctx context.Context) error
	// WaitNetworkIdle waits until no request has been in flight for idle, or
	// timeout elapses. It returns false on timeout; callers treat that as "carry on".
	WaitNetworkIdle(ctx context.Context, idle, timeout time.Duration) bool
	// Evaluate runs expr in the main frame's page context and decodes its JSON value into out.
	Evaluate(ctx context.Context, expr string, out any) error
	// Frames lists the frame tree breadth-first, main frame first.
	Frames(ctx context.Context) ([]Frame, error)
	// EvaluateInFrame runs expr against a frame's document in an isolated world.
	EvaluateInFrame(ctx context.Context, frameID, expr string, out any) error
	// Cookies returns the browser's whole cookie jar.
	Cookies(ctx context.Context) ([]models.Cookie, error)
	// Screenshot captures the viewport as JPEG at the given quality.
	Screenshot(ctx context.Context, quality int) ([]byte, error)
	// HTML returns the serialized DOM of the main frame.
	HTML(ctx context.Context) (string, error)
	// SubscribeRequests calls fn with the URL of every request the page issues
	// until the returned function is called.
	SubscribeRequests(fn func(url string)) (unsubscribe func())
	// Close terminates the browser. It is safe to call more than once.
	Close() error
}

// Launcher starts a fresh browser session.
type Launcher func(ctx context.Context) (Driver, error)
