package core

// GoalQueue is the active-goal deque: new goals join at the back, the loop
// takes from the front and requeued goals go back to the front.
type GoalQueue struct {
	items []*Goal
}

func NewGoalQueue() *GoalQueue {
	return &GoalQueue{}
}

func (q *GoalQueue) Len() int { return len(q.items) }

func (q *GoalQueue) PushBack(g *Goal) {
	q.items = append(q.items, g)
}

func (q *GoalQueue) PushFront(g *Goal) {
	q.items = append(q.items, nil)
	copy(q.items[1:], q.items)
	q.items[0] = g
}

// PopFront removes and returns the head, or nil when empty.
func (q *GoalQueue) PopFront() *Goal {
	if len(q.items) == 0 {
		return nil
	}
	g := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return g
}

// Drain removes and returns every queued goal in order.
func (q *GoalQueue) Drain() []*Goal {
	out := q.items
	q.items = nil
	return out
}

// Items returns a copy of the queue contents in order.
func (q *GoalQueue) Items() []*Goal {
	return append([]*Goal(nil), q.items...)
}
