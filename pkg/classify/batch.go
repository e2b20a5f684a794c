package classify

import (
	"encoding/json"
	"fmt"

	"github.com/Sriram-PR/cookie-scanner/pkg/aggregate"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/process"
)

// Item is one identity to classify. Key is the true identity key.
type Item struct {
	Type     models.ItemType
	Key      string
	Name     string
	Provider string
	States   []models.ConsentPhase
}

// promptItem is the wire form of an Item; Key is the synthetic batch key.
type promptItem struct {
	Type     models.ItemType       `json:"type"`
	Key      string                `json:"key"`
	Name     string                `json:"name,omitempty"`
	Provider string                `json:"provider"`
	States   []models.ConsentPhase `json:"states"`
}

// Batch is a slice of items sent in one oracle call, with the map from
// synthetic keys back to identity keys.
type Batch struct {
	Index  int
	Items  []promptItem
	keyMap map[string]string
}

// Resolve maps a synthetic key back to its identity key.
func (b *Batch) Resolve(short string) (string, bool) {
	k, ok := b.keyMap[short]
	return k, ok
}

// Len returns the number of items in the batch.
func (b *Batch) Len() int { return len(b.Items) }

// ItemsFrom flattens aggregated observations in the order cookies, requests,
// storage, then third-party domains.
func ItemsFrom(agg *aggregate.Aggregator) []Item {
	var items []Item
	for _, o := range agg.Cookies() {
		items = append(items, Item{Type: models.ItemCookie, Key: o.Key, Name: o.Data.Name, Provider: o.Data.Domain, States: o.States()})
	}
	for _, o := range agg.Requests() {
		items = append(items, Item{Type: models.ItemNetworkRequest, Key: o.Key, Provider: o.Data.Hostname, States: o.States()})
	}
	for _, o := range agg.Storage() {
		items = append(items, Item{Type: models.ItemStorage, Key: o.Key, Name: o.Data.Key, Provider: o.Data.Origin, States: o.States()})
	}
	for _, o := range agg.Domains() {
		items = append(items, Item{Type: models.ItemThirdPartyDomain, Key: o.Key, Provider: o.Data.Hostname, States: o.States()})
	}
	return items
}

// BuildBatches splits items into batches of at most size items. When
// maxTokens is positive a batch is also closed before the serialized items
// would push the prompt past maxTokens; a single oversized item still gets a
// batch of its own.
func BuildBatches(items []Item, size, maxTokens int, counter *process.TokenCounter) []*Batch {
	if size <= 0 {
		size = len(items)
	}
	overhead := 0
	if maxTokens > 0 {
		overhead = counter.Count(batchPrompt(""))
	}

	var batches []*Batch
	var cur []Item
	curTokens := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		batches = append(batches, newBatch(len(batches), cur))
		cur = nil
		curTokens = 0
	}
	for _, it := range items {
		itemTokens := 0
		if maxTokens > 0 {
			raw, _ := json.MarshalIndent(promptItem{Type: it.Type, Key: fmt.Sprintf("%s-000-00", it.Type), Name: it.Name, Provider: it.Provider, States: it.States}, "  ", "  ")
			itemTokens = counter.Count(string(raw))
			if len(cur) > 0 && overhead+curTokens+itemTokens > maxTokens {
				flush()
			}
		}
		cur = append(cur, it)
		curTokens += itemTokens
		if len(cur) >= size {
			flush()
		}
	}
	flush()
	return batches
}

func newBatch(index int, items []Item) *Batch {
	b := &Batch{Index: index, Items: make([]promptItem, 0, len(items)), keyMap: make(map[string]string, len(items))}
	for i, it := range items {
		short := fmt.Sprintf("%s-%d-%d", it.Type, index, i)
		b.keyMap[short] = it.Key
		states := it.States
		if states == nil {
			states = []models.ConsentPhase{}
		}
		b.Items = append(b.Items, promptItem{Type: it.Type, Key: short, Name: it.Name, Provider: it.Provider, States: states})
	}
	return b
}

// Prompt renders the batch's oracle prompt.
func (b *Batch) Prompt() string {
	raw, _ := json.MarshalIndent(b.Items, "", "  ")
	return batchPrompt(string(raw))
}
