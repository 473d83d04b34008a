package scheduler

import (
	"container/heap"
	"sort"
)

// PriorityQueue orders ready and validated tasks by effective priority.
// Equal priorities fall back to insertion order; that stability is a
// fairness guarantee, not an implementation detail.
type PriorityQueue struct {
	items   taskHeap
	byID    map[string]*queueItem
	nextSeq uint64
}

type queueItem struct {
	task     *Task
	priority int
	seq      uint64
	index    int
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{
		byID: make(map[string]*queueItem),
	}
}

// Enqueue inserts a task at the given effective priority. A task already
// queued keeps its position (use UpdatePriority to reorder).
func (q *PriorityQueue) Enqueue(task *Task, priority int) {
	if _, ok := q.byID[task.ID]; ok {
		return
	}
	item := &queueItem{
		task:     task,
		priority: priority,
		seq:      q.nextSeq,
	}
	q.nextSeq++
	q.byID[task.ID] = item
	heap.Push(&q.items, item)
}

// Dequeue removes and returns the highest-priority task regardless of state.
// Returns nil when empty.
func (q *PriorityQueue) Dequeue() *Task {
	if q.items.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.items).(*queueItem)
	delete(q.byID, item.task.ID)
	return item.task
}

// DequeueReady removes and returns the highest-priority task whose current
// status is exactly ready, leaving validated entries queued. Returns nil
// when no ready task is queued.
func (q *PriorityQueue) DequeueReady() *Task {
	var skipped []*queueItem
	var found *queueItem

	for q.items.Len() > 0 {
		item := heap.Pop(&q.items).(*queueItem)
		if item.task.Status == StatusReady {
			found = item
			break
		}
		skipped = append(skipped, item)
	}

	// Reinsert skipped entries; they retain their original seq so fairness
	// ordering is unaffected.
	for _, item := range skipped {
		heap.Push(&q.items, item)
	}

	if found == nil {
		return nil
	}
	delete(q.byID, found.task.ID)
	return found.task
}

// Remove drops a task from the queue. Reports whether it was present.
func (q *PriorityQueue) Remove(taskID string) bool {
	item, ok := q.byID[taskID]
	if !ok {
		return false
	}
	heap.Remove(&q.items, item.index)
	delete(q.byID, taskID)
	return true
}

// Contains reports whether the task is queued.
func (q *PriorityQueue) Contains(taskID string) bool {
	_, ok := q.byID[taskID]
	return ok
}

// UpdatePriority reorders a queued task to a new effective priority.
func (q *PriorityQueue) UpdatePriority(taskID string, priority int) bool {
	item, ok := q.byID[taskID]
	if !ok {
		return false
	}
	item.priority = priority
	heap.Fix(&q.items, item.index)
	return true
}

// MoveToReady atomically re-ranks a validated entry whose task has become
// ready. The caller has already transitioned the task; this re-applies the
// (possibly soft-dependency-adjusted) priority in one step.
func (q *PriorityQueue) MoveToReady(taskID string, priority int) bool {
	return q.UpdatePriority(taskID, priority)
}

// Len returns the number of queued tasks (ready and validated).
func (q *PriorityQueue) Len() int {
	return q.items.Len()
}

// ReadyCount returns the number of queued tasks currently in ready state.
func (q *PriorityQueue) ReadyCount() int {
	count := 0
	for _, item := range q.items {
		if item.task.Status == StatusReady {
			count++
		}
	}
	return count
}

// Snapshot returns queued tasks in dequeue order without mutating the queue.
func (q *PriorityQueue) Snapshot() []*Task {
	items := make([]*queueItem, len(q.items))
	copy(items, q.items)
	sort.Slice(items, func(i, j int) bool {
		if items[i].priority != items[j].priority {
			return items[i].priority > items[j].priority
		}
		return items[i].seq < items[j].seq
	})

	tasks := make([]*Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, item.task)
	}
	return tasks
}

// taskHeap implements heap.Interface: max priority first, then FIFO by seq.
type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
