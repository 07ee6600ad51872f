package containers

import (
	"errors"
	"testing"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[int](4)
	for i := 1; i <= 4; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	for i := 1; i <= 4; i++ {
		got, err := q.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got != i {
			t.Errorf("Dequeue = %d, want %d", got, i)
		}
	}
}

func TestRingQueueFull(t *testing.T) {
	q := NewRingQueue[string](2)
	q.Enqueue("a")
	q.Enqueue("b")
	if !q.IsFull() {
		t.Error("queue should report full")
	}
	if err := q.Enqueue("c"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue on full = %v, want ErrQueueFull", err)
	}
}

func TestRingQueueEmpty(t *testing.T) {
	q := NewRingQueue[int](2)
	if !q.IsEmpty() {
		t.Error("new queue should report empty")
	}
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Dequeue on empty = %v, want ErrQueueEmpty", err)
	}
	if _, err := q.Peek(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Peek on empty = %v, want ErrQueueEmpty", err)
	}
}

func TestRingQueuePeek(t *testing.T) {
	q := NewRingQueue[int](2)
	q.Enqueue(7)
	got, err := q.Peek()
	if err != nil || got != 7 {
		t.Errorf("Peek = %d, %v", got, err)
	}
	if q.Len() != 1 {
		t.Errorf("Peek consumed the element, Len = %d", q.Len())
	}
}

func TestRingQueueWrapAround(t *testing.T) {
	q := NewRingQueue[int](3)
	for i := 0; i < 10; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
		got, err := q.Dequeue()
		if err != nil || got != i {
			t.Fatalf("Dequeue = %d, %v, want %d", got, err, i)
		}
	}
	if !q.IsEmpty() {
		t.Errorf("Len = %d after balanced traffic, want 0", q.Len())
	}
}
