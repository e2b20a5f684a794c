package queue

import (
	"container/heap"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// --- Priority Queue Implementation ---

// PQItem represents an item in the priority queue
type PQItem struct {
	target models.CrawlTarget
	seq    uint64 // insertion order, breaks priority ties
	index  int    // The index of the item in the heap (required by heap interface)
}

// PriorityQueue implements heap.Interface. Items with equal priority pop in
// insertion order, so the ordering matches a stable sort by priority.
type PriorityQueue []*PQItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].target.Priority != pq[j].target.Priority {
		return pq[i].target.Priority < pq[j].target.Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push adds an element to the heap
func (pq *PriorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*PQItem)
	item.index = n
	*pq = append(*pq, item)
}

// Pop removes and returns the minimum element from the heap
func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}

// push wraps heap.Push with sequence assignment.
func (pq *PriorityQueue) push(target models.CrawlTarget, seq uint64) {
	heap.Push(pq, &PQItem{target: target, seq: seq})
}

// pop wraps heap.Pop. Callers check Len first.
func (pq *PriorityQueue) pop() models.CrawlTarget {
	return heap.Pop(pq).(*PQItem).target
}
