package classify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

type call struct {
	ctx    context.Context
	prompt string
	reply  chan callResult
}

type callResult struct {
	text string
	err  error
}

// Dispatcher serializes every oracle call of the process through one worker.
// At most one call is in flight, and the next call is not dispatched until
// minInterval has passed since the previous one completed. Dispatcher itself
// implements Oracle so it can be shared by concurrent scans.
type Dispatcher struct {
	oracle      Oracle
	minInterval time.Duration
	calls       chan call
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	log         *logrus.Entry

	mu         sync.Mutex
	dispatched int
}

// NewDispatcher starts the dispatch worker. Call Close to stop it.
func NewDispatcher(oracle Oracle, minInterval time.Duration, log *logrus.Entry) *Dispatcher {
	d := &Dispatcher{
		oracle:      oracle,
		minInterval: minInterval,
		calls:       make(chan call),
		done:        make(chan struct{}),
		log:         log.WithField("component", "oracle_queue"),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Complete queues prompt and waits for its turn and result.
func (d *Dispatcher) Complete(ctx context.Context, prompt string) (string, error) {
	c := call{ctx: ctx, prompt: prompt, reply: make(chan callResult, 1)}
	select {
	case d.calls <- c:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-d.done:
		return "", utils.ErrQueueClosed
	}
	select {
	case r := <-c.reply:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Dispatched returns how many calls reached the oracle.
func (d *Dispatcher) Dispatched() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatched
}

// Close stops the worker. Calls waiting to be queued fail with ErrQueueClosed.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	var lastDone time.Time
	for {
		var c call
		select {
		case <-d.done:
			return
		case c = <-d.calls:
		}

		if !lastDone.IsZero() && d.minInterval > 0 {
			wait := time.Until(lastDone.Add(d.minInterval))
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-c.ctx.Done():
					timer.Stop()
					c.reply <- callResult{err: c.ctx.Err()}
					continue
				case <-d.done:
					timer.Stop()
					c.reply <- callResult{err: utils.ErrQueueClosed}
					return
				}
			}
		}
		if err := c.ctx.Err(); err != nil {
			c.reply <- callResult{err: err}
			continue
		}

		d.mu.Lock()
		d.dispatched++
		d.mu.Unlock()
		text, err := d.invoke(c)
		lastDone = time.Now()
		c.reply <- callResult{text: text, err: err}
	}
}

func (d *Dispatcher) invoke(c call) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in oracle call")
			err = fmt.Errorf("%w: panic: %v", utils.ErrOracleNetwork, r)
		}
	}()
	start := time.Now()
	text, err = d.oracle.Complete(c.ctx, c.prompt)
	d.log.WithFields(logrus.Fields{
		"duration":     time.Since(start).String(),
		"error_type":   utils.CategorizeError(err),
		"prompt_bytes": len(c.prompt),
	}).Debug("Oracle call finished")
	return text, err
}
