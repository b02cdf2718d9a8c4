package scheduler

// runQueue is the FIFO of READY tasks.
type runQueue struct {
	items []*ControlBlock
}

func (q *runQueue) push(block *ControlBlock) {
	q.items = append(q.items, block)
}

func (q *runQueue) pop() *ControlBlock {
	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head
}

func (q *runQueue) len() int {
	return len(q.items)
}

func (q *runQueue) ids() []TaskID {
	ret := make([]TaskID, len(q.items))
	for i, block := range q.items {
		ret[i] = block.ID
	}
	return ret
}

func (q *runQueue) reset() {
	q.items = nil
}
