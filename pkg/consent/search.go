package consent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/browser"
)

// ClickResult describes a successful consent click.
type ClickResult struct {
	FrameID  string
	FrameURL string
	Keyword  string
}

// FindAndClick searches the main frame and then every descendant frame,
// breadth-first, for a control matching the action's keywords and clicks the
// first match. Frames that cannot be inspected count as "not found". After a
// click it waits up to clickIdle for network settling; a timeout there is not
// an error.
func FindAndClick(ctx context.Context, drv browser.Driver, action Action, idle, clickIdle time.Duration, log *logrus.Entry) (ClickResult, bool) {
	log = log.WithField("action", action)
	frames, err := drv.Frames(ctx)
	if err != nil {
		log.Warnf("Could not read frame tree: %v", err)
		return ClickResult{}, false
	}

	keywords := KeywordsFor(action)
	for _, f := range frames {
		if ctx.Err() != nil {
			return ClickResult{}, false
		}
		frameLog := log.WithField("frame_url", f.URL)

		var labels []string
		if err := drv.EvaluateInFrame(ctx, f.ID, ListControlsProbe(), &labels); err != nil {
			frameLog.Debugf("Skipping frame: %v", err)
			continue
		}
		idx, kw, ok := MatchControl(labels, keywords)
		if !ok {
			continue
		}

		var clicked bool
		if err := drv.EvaluateInFrame(ctx, f.ID, ClickProbe(idx, labels[idx]), &clicked); err != nil {
			frameLog.Debugf("Click failed: %v", err)
			continue
		}
		if !clicked {
			frameLog.Debug("Matched control vanished before click")
			continue
		}

		frameLog.Infof("Clicked button containing: %q", kw)
		if !drv.WaitNetworkIdle(ctx, idle, clickIdle) {
			frameLog.Debug("Network did not become idle after consent click, continuing")
		}
		return ClickResult{FrameID: f.ID, FrameURL: f.URL, Keyword: kw}, true
	}

	log.Infof("No actionable button found for %q", action)
	return ClickResult{}, false
}
