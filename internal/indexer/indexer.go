// Package indexer implements the packet indexer mesh: a tree of
// Sorter nodes that merges N capture-source queues, each already in
// its own arrival order, into a single globally timestamp-ordered
// stream, and assigns each packet a dense monotonic ordinal as it
// leaves the tree.
package indexer

import (
	"sync"
	"sync/atomic"
)

// fanIn is the branching factor of each Sorter node. Kept small and
// fixed, matching the original implementation's constant fan-in
// sorter tree.
const fanIn = 4

// Indexer owns the sorter tree built over a fixed number of raw
// capture-source input queues and assigns a dense ordinal to every
// item that reaches the root.
type Indexer struct {
	inputs  []*Queue
	sorters []*Sorter
	root    *Queue

	ordinal atomic.Uint64

	wg sync.WaitGroup
}

// New builds an Indexer with numInputs raw input queues. Call
// GetInput to obtain each source's queue before Start.
func New(numInputs int) *Indexer {
	if numInputs < 1 {
		numInputs = 1
	}
	idx := &Indexer{inputs: make([]*Queue, numInputs)}
	for i := range idx.inputs {
		idx.inputs[i] = NewQueue()
	}
	idx.build()
	return idx
}

// build constructs depth = ceil(log_fanIn(numInputs)) levels of
// Sorter nodes on top of idx.inputs, ending in a single root queue.
func (idx *Indexer) build() {
	level := idx.inputs
	for len(level) > 1 {
		var next []*Queue
		for i := 0; i < len(level); i += fanIn {
			end := i + fanIn
			if end > len(level) {
				end = len(level)
			}
			s := NewSorter(level[i:end])
			idx.sorters = append(idx.sorters, s)
			next = append(next, s.Output())
		}
		level = next
	}
	idx.root = level[0]
}

// GetInput returns the raw input queue for capture source i.
func (idx *Indexer) GetInput(i int) *Queue { return idx.inputs[i] }

// Start launches one goroutine per sorter node in the tree.
func (idx *Indexer) Start() {
	for _, s := range idx.sorters {
		idx.wg.Add(1)
		go func(s *Sorter) {
			defer idx.wg.Done()
			s.Run()
		}(s)
	}
}

// Stop signals every raw input queue to stop; the sorter tree then
// drains and shuts down on its own as each level observes its inputs
// close.
func (idx *Indexer) Stop() {
	for _, in := range idx.inputs {
		in.Stop()
	}
}

// Join blocks until every sorter goroutine has exited. Callers should
// call Stop first, or rely on every input queue being stopped by its
// capture source.
func (idx *Indexer) Join() {
	idx.wg.Wait()
}

// Next blocks until the next globally ordered item is available,
// stamping it with a dense monotonic ordinal as it leaves the tree.
// ok is false once the tree has fully drained after Stop.
func (idx *Indexer) Next() (item *Item, ordinal uint64, ok bool) {
	item, ok = idx.root.Pop()
	if !ok {
		return nil, 0, false
	}
	ordinal = idx.ordinal.Add(1) - 1
	return item, ordinal, true
}
