package queue

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/parse"
)

// Frontier is the pending-URL queue of one scan together with its visited set.
// A URL is accepted at most once while pending and never after it has been
// visited or discarded. All keys are normalized with parse.NormalizeURL.
type Frontier struct {
	mu        sync.Mutex
	pq        PriorityQueue
	seq       uint64
	pending   map[string]struct{}
	visited   map[string]struct{}
	discarded map[string]struct{}
	order     []string // visited URLs in visit order
	log       *logrus.Entry
}

// NewFrontier creates an empty frontier.
func NewFrontier(log *logrus.Entry) *Frontier {
	return &Frontier{
		pending:   make(map[string]struct{}),
		visited:   make(map[string]struct{}),
		discarded: make(map[string]struct{}),
		log:       log,
	}
}

// Enqueue adds rawURL at the given priority unless it is unparsable, already
// pending, already visited or previously discarded. Reports whether it was added.
func (f *Frontier) Enqueue(rawURL string, priority int) bool {
	key, _, err := parse.ParseAndNormalize(rawURL)
	if err != nil {
		f.log.WithError(err).WithField("url", rawURL).Debug("Frontier rejected unparsable URL")
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.visited[key]; ok {
		return false
	}
	if _, ok := f.pending[key]; ok {
		return false
	}
	if _, ok := f.discarded[key]; ok {
		return false
	}
	f.pending[key] = struct{}{}
	f.seq++
	f.pq.push(models.CrawlTarget{URL: key, Priority: priority}, f.seq)
	return true
}

// Dequeue removes and returns the lowest-priority target, oldest first on ties.
// Returns false when the frontier is empty.
func (f *Frontier) Dequeue() (models.CrawlTarget, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.pq.Len() > 0 {
		target := f.pq.pop()
		delete(f.pending, target.URL)
		if _, ok := f.visited[target.URL]; ok {
			continue
		}
		return target, true
	}
	return models.CrawlTarget{}, false
}

// MarkVisited records a successfully fetched URL.
func (f *Frontier) MarkVisited(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.visited[key]; ok {
		return
	}
	f.visited[key] = struct{}{}
	f.order = append(f.order, key)
}

// Discard records a URL that was dequeued but will not be fetched (out of
// scope, section full, navigation failed) so rediscovery does not re-queue it.
func (f *Frontier) Discard(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded[key] = struct{}{}
}

// IsVisited reports whether the normalized URL has been fetched.
func (f *Frontier) IsVisited(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[key]
	return ok
}

// Len returns the number of pending targets.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pq.Len()
}

// VisitedCount returns the size of the visited set.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Visited returns the visited URLs in the order they were fetched.
func (f *Frontier) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}
