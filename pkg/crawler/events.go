package crawler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// eventReporter turns progress lines into log events.
type eventReporter struct {
	sink func(models.Event)
}

func (r *eventReporter) Logf(format string, args ...any) {
	if r.sink == nil {
		return
	}
	r.sink(models.Event{Type: models.EventLog, Message: fmt.Sprintf(format, args...), Time: time.Now()})
}

// Scan runs a scan in the background and streams its events: log events
// followed by exactly one result or error event, after which the channel is
// closed. The caller must drain the channel or cancel ctx; once ctx is done,
// events nobody receives are dropped.
func (s *Scanner) Scan(ctx context.Context, req Request) <-chan models.Event {
	events := make(chan models.Event, 64)
	go func() {
		defer close(events)
		result, err := s.runRecovered(ctx, req, func(ev models.Event) { send(ctx, events, ev) })
		if err != nil {
			send(ctx, events, models.Event{Type: models.EventError, Message: err.Error(), Time: time.Now()})
			return
		}
		send(ctx, events, models.Event{Type: models.EventResult, Payload: result, Time: time.Now()})
	}()
	return events
}

// send delivers ev unless ctx ends first. Room in the buffer wins over a
// done context, so a draining consumer still sees the terminal event.
func send(ctx context.Context, events chan<- models.Event, ev models.Event) bool {
	select {
	case events <- ev:
		return true
	default:
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scanner) runRecovered(ctx context.Context, req Request, sink func(models.Event)) (result *models.ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"panic_info":  r,
				"scan_id":     req.ScanID,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in scan")
			result, err = nil, fmt.Errorf("scan panicked: %v", r)
		}
	}()
	return s.Run(ctx, req, sink)
}

// Collect drains a scan's event stream, passing log lines to onLog, and
// returns the terminal result or error.
func Collect(events <-chan models.Event, onLog func(string)) (*models.ScanResult, error) {
	var (
		result *models.ScanResult
		err    error
	)
	for ev := range events {
		switch ev.Type {
		case models.EventLog:
			if onLog != nil {
				onLog(ev.Message)
			}
		case models.EventResult:
			result = ev.Payload
		case models.EventError:
			err = fmt.Errorf("%w: %s", utils.ErrScanFailed, ev.Message)
		}
	}
	if result == nil && err == nil {
		err = fmt.Errorf("%w: event stream ended without a result", utils.ErrScanFailed)
	}
	return result, err
}
