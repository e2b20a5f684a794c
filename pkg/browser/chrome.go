package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

const isolatedWorldName = "cookie-scanner"

// ChromeDriver is a Driver backed by a dedicated headless Chrome process.
type ChromeDriver struct {
	ctx         context.Context // tab context; every CDP call derives from it
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	navTimeout  time.Duration
	idle        *IdleTracker

	subMu     sync.Mutex
	subs      map[int]func(string)
	nextSubID int

	closeOnce sync.Once
	log       *logrus.Entry
}

// NewLauncher returns a Launcher that starts Chrome with cfg.
func NewLauncher(cfg config.BrowserConfig, log *logrus.Entry) Launcher {
	return func(ctx context.Context) (Driver, error) {
		return NewChromeDriver(ctx, cfg, log)
	}
}

// NewChromeDriver starts a fresh browser process with one tab. The process is
// torn down when ctx ends or Close is called.
func NewChromeDriver(ctx context.Context, cfg config.BrowserConfig, log *logrus.Entry) (*ChromeDriver, error) {
	log = log.WithField("component", "browser")

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.BoolOr(cfg.Headless, true)),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if ua := strings.TrimSpace(cfg.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}
	if cfg.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, execOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf))

	d := &ChromeDriver{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		navTimeout:  cfg.NavigationTimeout,
		idle:        NewIdleTracker(),
		subs:        make(map[int]func(string)),
		log:         log,
	}
	chromedp.ListenTarget(tabCtx, d.onEvent)

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight)),
	); err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: %w", utils.ErrBrowserLaunch, err)
	}
	log.Debug("Browser session started")
	return d, nil
}

func (d *ChromeDriver) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		d.idle.Started(string(e.RequestID))
		if e.Request != nil {
			d.notify(e.Request.URL)
		}
	case *network.EventLoadingFinished:
		d.idle.Finished(string(e.RequestID))
	case *network.EventLoadingFailed:
		d.idle.Finished(string(e.RequestID))
	}
}

func (d *ChromeDriver) notify(u string) {
	d.subMu.Lock()
	fns := make([]func(string), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.subMu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

// SubscribeRequests implements Driver.
func (d *ChromeDriver) SubscribeRequests(fn func(url string)) func() {
	d.subMu.Lock()
	id := d.nextSubID
	d.nextSubID++
	d.subs[id] = fn
	d.subMu.Unlock()
	return func() {
		d.subMu.Lock()
		delete(d.subs, id)
		d.subMu.Unlock()
	}
}

// opContext derives a CDP context from the tab that also ends with the caller's ctx.
func (d *ChromeDriver) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var opCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(d.ctx, timeout)
	} else {
		opCtx, cancel = context.WithCancel(d.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// Navigate implements Driver.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := d.opContext(ctx, d.navTimeout)
	defer cancel()
	d.idle.Reset()
	if err := chromedp.Run(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %s: %w", utils.ErrNavigation, url, err)
	}
	return nil
}

// Reload implements Driver.
func (d *ChromeDriver) Reload(ctx context.Context) error {
	opCtx, cancel := d.opContext(ctx, d.navTimeout)
	defer cancel()
	d.idle.Reset()
	if err := chromedp.Run(opCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("%w: reload: %w", utils.ErrNavigation, err)
	}
	return nil
}

// WaitNetworkIdle implements Driver.
func (d *ChromeDriver) WaitNetworkIdle(ctx context.Context, idle, timeout time.Duration) bool {
	return d.idle.Wait(ctx, idle, timeout)
}

// Evaluate implements Driver.
func (d *ChromeDriver) Evaluate(ctx context.Context, expr string, out any) error {
	opCtx, cancel := d.opContext(ctx, d.navTimeout)
	defer cancel()
	err := chromedp.Run(opCtx, chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrProbe, err)
	}
	return nil
}

// Frames implements Driver.
func (d *ChromeDriver) Frames(ctx context.Context) ([]Frame, error) {
	opCtx, cancel := d.opContext(ctx, d.navTimeout)
	defer cancel()

	var tree *page.FrameTree
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: frame tree: %w", utils.ErrProbe, err)
	}
	return flattenFrameTree(tree), nil
}

func flattenFrameTree(root *page.FrameTree) []Frame {
	if root == nil || root.Frame == nil {
		return nil
	}
	type node struct {
		tree   *page.FrameTree
		parent string
		depth  int
	}
	var frames []Frame
	queue := []node{{tree: root}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.tree.Frame == nil {
			continue
		}
		id := string(n.tree.Frame.ID)
		frames = append(frames, Frame{ID: id, ParentID: n.parent, URL: n.tree.Frame.URL, Depth: n.depth})
		for _, child := range n.tree.ChildFrames {
			queue = append(queue, node{tree: child, parent: id, depth: n.depth + 1})
		}
	}
	return frames
}

// EvaluateInFrame implements Driver.
func (d *ChromeDriver) EvaluateInFrame(ctx context.Context, frameID, expr string, out any) error {
	opCtx, cancel := d.opContext(ctx, d.navTimeout)
	defer cancel()

	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		execID, err := page.CreateIsolatedWorld(cdp.FrameID(frameID)).WithWorldName(isolatedWorldName).Do(ctx)
		if err != nil {
			return err
		}
		res, exc, err := runtime.Evaluate(expr).
			WithContextID(execID).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(res.Value), out)
	}))
	if err != nil {
		return fmt.Errorf("%w: frame %s: %w", utils.ErrProbe, frameID, err)
	}
	return nil
}

// Cookies implements Driver.
func (d *ChromeDriver) Cookies(ctx context.Context) ([]models.Cookie, error) {
	opCtx, cancel := d.opContext(ctx, d.navTimeout)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: cookies: %w", utils.ErrProbe, err)
	}

	cookies := make([]models.Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		cookies = append(cookies, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Size:     c.Size,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

// Screenshot implements Driver.
func (d *ChromeDriver) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	opCtx, cancel := d.opContext(ctx, d.navTimeout)
	defer cancel()

	var buf []byte
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot: %w", utils.ErrProbe, err)
	}
	return buf, nil
}

// HTML implements Driver.
func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	opCtx, cancel := d.opContext(ctx, d.navTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("%w: outer html: %w", utils.ErrProbe, err)
	}
	return html, nil
}

// Close implements Driver.
func (d *ChromeDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = chromedp.Cancel(d.ctx)
		d.cancelTab()
		d.cancelAlloc()
		d.log.Debug("Browser session closed")
	})
	return err
}
