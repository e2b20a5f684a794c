// Package browsertest provides a scriptable in-memory browser.Driver.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sriram-PR/cookie-scanner/pkg/browser"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// ProbeFunc answers an evaluated expression. frameID is "" for main-world
// evaluation. name is browser.ProbeName(expr). Returning a nil value leaves
// the caller's output untouched.
type ProbeFunc func(f *Fake, frameID, name, expr string) (any, error)

// Fake is a browser.Driver whose behaviour is set through its fields.
// Set the fields before use; the methods are safe for concurrent calls.
type Fake struct {
	// NavigateErr returns an error for a URL to simulate a failed load.
	NavigateErr func(url string) error
	// OnLoad runs after every successful Navigate and Reload. Use it to set
	// cookies and fire requests the way the page would.
	OnLoad func(f *Fake, url string)
	// Probe answers Evaluate and EvaluateInFrame.
	Probe ProbeFunc
	// FrameTree is returned by Frames. Defaults to a single "main" frame.
	FrameTree []browser.Frame
	// PageHTML returns the DOM for HTML.
	PageHTML func(url string) string
	// Shot is returned by Screenshot.
	Shot []byte

	mu        sync.Mutex
	current   string
	jar       map[string]models.Cookie
	subs      map[int]func(string)
	nextSub   int
	calls     []string
	closed    int
	navigated []string
}

var _ browser.Driver = (*Fake)(nil)

func (f *Fake) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Launcher returns a browser.Launcher that always yields f.
func (f *Fake) Launcher() browser.Launcher {
	return func(context.Context) (browser.Driver, error) { return f, nil }
}

// Navigate implements browser.Driver.
func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.record("navigate " + url)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.NavigateErr != nil {
		if err := f.NavigateErr(url); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.current = url
	f.navigated = append(f.navigated, url)
	f.mu.Unlock()
	if f.OnLoad != nil {
		f.OnLoad(f, url)
	}
	return nil
}

// Reload implements browser.Driver.
func (f *Fake) Reload(ctx context.Context) error {
	f.record("reload")
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.OnLoad != nil {
		f.OnLoad(f, f.CurrentURL())
	}
	return nil
}

// WaitNetworkIdle implements browser.Driver.
func (f *Fake) WaitNetworkIdle(ctx context.Context, _, _ time.Duration) bool {
	return ctx.Err() == nil
}

func (f *Fake) answer(frameID, expr string, out any) error {
	if f.Probe == nil {
		return nil
	}
	name := browser.ProbeName(expr)
	v, err := f.Probe(f, frameID, name, expr)
	if err != nil {
		return err
	}
	if v == nil || out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Evaluate implements browser.Driver.
func (f *Fake) Evaluate(ctx context.Context, expr string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.answer("", expr, out)
}

// EvaluateInFrame implements browser.Driver.
func (f *Fake) EvaluateInFrame(ctx context.Context, frameID, expr string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name := browser.ProbeName(expr); name != "" {
		f.record(fmt.Sprintf("probe %s@%s", name, frameID))
	}
	return f.answer(frameID, expr, out)
}

// Frames implements browser.Driver.
func (f *Fake) Frames(context.Context) ([]browser.Frame, error) {
	if len(f.FrameTree) == 0 {
		return []browser.Frame{{ID: "main", URL: f.CurrentURL()}}, nil
	}
	return append([]browser.Frame(nil), f.FrameTree...), nil
}

// Cookies implements browser.Driver. The jar is returned sorted by identity.
func (f *Fake) Cookies(ctx context.Context) ([]models.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.jar))
	for k := range f.jar {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]models.Cookie, 0, len(keys))
	for _, k := range keys {
		out = append(out, f.jar[k])
	}
	return out, nil
}

// Screenshot implements browser.Driver.
func (f *Fake) Screenshot(context.Context, int) ([]byte, error) {
	f.record("screenshot")
	return f.Shot, nil
}

// HTML implements browser.Driver.
func (f *Fake) HTML(context.Context) (string, error) {
	if f.PageHTML == nil {
		return "<html></html>", nil
	}
	return f.PageHTML(f.CurrentURL()), nil
}

// SubscribeRequests implements browser.Driver.
func (f *Fake) SubscribeRequests(fn func(string)) func() {
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]func(string))
	}
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Close implements browser.Driver.
func (f *Fake) Close() error {
	f.record("close")
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

// SetCookie stores c in the jar, replacing any cookie with the same identity.
func (f *Fake) SetCookie(c models.Cookie) {
	f.mu.Lock()
	if f.jar == nil {
		f.jar = make(map[string]models.Cookie)
	}
	f.jar[c.IdentityKey()] = c
	f.mu.Unlock()
}

// FireRequest delivers a request URL to current subscribers.
func (f *Fake) FireRequest(url string) {
	f.mu.Lock()
	fns := make([]func(string), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(url)
	}
}

// CurrentURL is the last URL navigated to.
func (f *Fake) CurrentURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Calls returns the recorded call log.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Navigated returns the URLs successfully navigated to, in order.
func (f *Fake) Navigated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigated...)
}

// ClosedCount returns how many times Close was called.
func (f *Fake) ClosedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
