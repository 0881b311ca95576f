package readerset

// readerHeap is a container/heap.Interface over *Reader, keyed on
// lookahead_timestamp with insertion-order tie-breaking (§3, §8.7).
type readerHeap []*Reader

func (h readerHeap) Len() int { return len(h) }

func (h readerHeap) Less(i, j int) bool {
	ti, tj := h[i].lookahead.Timestamp, h[j].lookahead.Timestamp
	if ti != tj {
		return ti < tj
	}
	return h[i].seq < h[j].seq
}

func (h readerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readerHeap) Push(x any) {
	*h = append(*h, x.(*Reader))
}

func (h *readerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
