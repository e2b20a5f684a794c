package aggregate

import (
	"sync"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// Domain is a third-party hostname with the union of its requests' phases and pages.
type Domain struct {
	Hostname string
}

// Aggregator accumulates the captures of one scan.
type Aggregator struct {
	mu       sync.Mutex
	cookies  *ObservationMap[models.Cookie]
	requests *ObservationMap[models.NetworkRequest]
	storage  *ObservationMap[models.StorageItem]
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		cookies:  NewObservationMap[models.Cookie](),
		requests: NewObservationMap[models.NetworkRequest](),
		storage:  NewObservationMap[models.StorageItem](),
	}
}

// Merge folds one capture into the maps. Merging the same capture twice
// changes nothing.
func (a *Aggregator) Merge(c models.PageCapture, phase models.ConsentPhase, pageURL string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ck := range c.Cookies {
		a.cookies.Add(ck.IdentityKey(), ck, phase, pageURL)
	}
	for _, r := range c.Requests {
		a.requests.Add(r.IdentityKey(), r, phase, pageURL)
	}
	for _, s := range c.Storage {
		a.storage.Add(s.IdentityKey(), s, phase, pageURL)
	}
}

// Cookies returns cookie observations in first-seen order.
func (a *Aggregator) Cookies() []*Observation[models.Cookie] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cookies.All()
}

// Requests returns network request observations in first-seen order.
func (a *Aggregator) Requests() []*Observation[models.NetworkRequest] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests.All()
}

// Storage returns storage observations in first-seen order.
func (a *Aggregator) Storage() []*Observation[models.StorageItem] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.storage.All()
}

// Domains regroups request observations by hostname, uniting their phases
// and pages. Order follows the first request seen for each host.
func (a *Aggregator) Domains() []*Observation[Domain] {
	a.mu.Lock()
	defer a.mu.Unlock()
	domains := NewObservationMap[Domain]()
	for _, req := range a.requests.All() {
		host := req.Data.Hostname
		for _, page := range req.pages {
			for _, phase := range req.States() {
				domains.Add(host, Domain{Hostname: host}, phase, page)
			}
		}
	}
	return domains.All()
}

// Counts returns the number of unique cookies, requests and storage items.
func (a *Aggregator) Counts() (cookies, requests, storage int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cookies.Len(), a.requests.Len(), a.storage.Len()
}

// Empty reports whether nothing at all was captured.
func (a *Aggregator) Empty() bool {
	c, r, s := a.Counts()
	return c+r+s == 0
}
