package utils

import (
	"container/heap"
	"sync"
	"time"
)

type ExpiringItem[T comparable] struct {
	Value    T
	ExpireAt time.Time
}

type expirationHeap[T comparable] []*ExpiringItem[T]

func (h expirationHeap[T]) Len() int           { return len(h) }
func (h expirationHeap[T]) Less(i, j int) bool { return h[i].ExpireAt.Before(h[j].ExpireAt) }
func (h expirationHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expirationHeap[T]) Push(x any) {
	*h = append(*h, x.(*ExpiringItem[T]))
}
func (h *expirationHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// ExpiryPriorityQueue orders values by expiry time, earliest first. Each
// value appears at most once.
type ExpiryPriorityQueue[T comparable] struct {
	items expirationHeap[T]
	mu    sync.Mutex
}

func NewExpiryPriorityQueue[T comparable]() *ExpiryPriorityQueue[T] {
	pq := &ExpiryPriorityQueue[T]{
		items: expirationHeap[T]{},
	}
	heap.Init(&pq.items)
	return pq
}

func (pq *ExpiryPriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.items)
}

func (pq *ExpiryPriorityQueue[T]) Peek() *ExpiringItem[T] {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if len(pq.items) == 0 {
		return nil
	}
	return pq.items[0]
}

// PopExpired removes and returns every item that expired at or before now.
func (pq *ExpiryPriorityQueue[T]) PopExpired(now time.Time) []*ExpiringItem[T] {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	var expired []*ExpiringItem[T]
	for len(pq.items) > 0 && !pq.items[0].ExpireAt.After(now) {
		expired = append(expired, heap.Pop(&pq.items).(*ExpiringItem[T]))
	}
	return expired
}

func (pq *ExpiryPriorityQueue[T]) Remove(x T) *ExpiringItem[T] {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	for i, item := range pq.items {
		if item.Value == x {
			heap.Remove(&pq.items, i)
			return item
		}
	}
	return nil
}

// UpdateExpiration reschedules x, inserting it if absent.
func (pq *ExpiryPriorityQueue[T]) UpdateExpiration(x T, newExpiration time.Time) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	for i, item := range pq.items {
		if item.Value == x {
			pq.items[i].ExpireAt = newExpiration
			heap.Fix(&pq.items, i)
			return
		}
	}
	heap.Push(&pq.items, &ExpiringItem[T]{
		Value:    x,
		ExpireAt: newExpiration,
	})
}
