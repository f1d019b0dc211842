package indexer

// Sorter merges P input queues into a single time-ordered output
// queue. At each step it blocks until every still-open input has a
// head element (or has been stopped and drained), then forwards the
// input with the smallest timestamp; ties are broken in favor of the
// lowest input index, so Sorter is stable under simultaneous
// timestamps the way the original implementation's std::min_element
// is.
type Sorter struct {
	inputs []*Queue
	output *Queue
	closed []bool
}

// NewSorter builds a Sorter reading from inputs and writing to a
// freshly created output queue.
func NewSorter(inputs []*Queue) *Sorter {
	return &Sorter{
		inputs: inputs,
		output: NewQueue(),
		closed: make([]bool, len(inputs)),
	}
}

// Output returns the queue Sorter writes merged items to.
func (s *Sorter) Output() *Queue { return s.output }

// Run drives the merge loop until every input closes, then stops the
// output queue. It is meant to run in its own goroutine.
func (s *Sorter) Run() {
	heads := make([]*Item, len(s.inputs))
	for {
		openCount := 0
		for i, in := range s.inputs {
			if s.closed[i] {
				continue
			}
			item, ok := in.Front()
			if !ok {
				s.closed[i] = true
				continue
			}
			heads[i] = item
			openCount++
		}
		if openCount == 0 {
			s.output.Stop()
			return
		}

		best := -1
		for i := range s.inputs {
			if s.closed[i] {
				continue
			}
			if best == -1 || less(heads[i], heads[best]) {
				best = i
			}
		}

		item, ok := s.inputs[best].Pop()
		if !ok {
			// the head we just observed was raced away by a Stop; loop
			// around and re-evaluate from scratch.
			continue
		}
		s.output.Push(item)
	}
}

func less(a, b *Item) bool {
	if a.TimestampSec != b.TimestampSec {
		return a.TimestampSec < b.TimestampSec
	}
	return a.TimestampUsec < b.TimestampUsec
}
