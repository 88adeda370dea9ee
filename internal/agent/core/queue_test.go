package core

import "testing"

func ids(goals []*Goal) []int {
	out := make([]int, 0, len(goals))
	for _, g := range goals {
		out = append(out, g.ID)
	}
	return out
}

func TestGoalQueueOrder(t *testing.T) {
	q := NewGoalQueue()
	if q.PopFront() != nil {
		t.Fatalf("expected nil from empty queue")
	}
	q.PushBack(&Goal{ID: 1})
	q.PushBack(&Goal{ID: 2})
	q.PushFront(&Goal{ID: 3})
	q.PushBack(&Goal{ID: 4})

	got := ids(q.Items())
	want := []int{3, 1, 2, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Items() = %v, want %v", got, want)
		}
	}
	if g := q.PopFront(); g.ID != 3 {
		t.Fatalf("expected requeued goal first, got %d", g.ID)
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", q.Len())
	}
	drained := q.Drain()
	if len(drained) != 3 || q.Len() != 0 {
		t.Fatalf("unexpected drain %v / %d", ids(drained), q.Len())
	}
}
