package playback

// entry is a queued clip with its scheduling metadata. seq gives FIFO order
// within a priority.
type entry struct {
	clip     *clip
	priority int
	seq      uint64
}

// clipHeap is a max-heap on priority with FIFO tie-breaking on seq.
type clipHeap []entry

func (h clipHeap) Len() int { return len(h) }

func (h clipHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h clipHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *clipHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *clipHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
