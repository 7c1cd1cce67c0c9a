// Package tree holds the server's topics in a slash-separated hierarchy.
package tree

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/AmyangXYZ/rtseries/internal/utils"
	"github.com/AmyangXYZ/rtseries/pkg/core"
	"github.com/AmyangXYZ/rtseries/pkg/notify"
	"github.com/AmyangXYZ/rtseries/pkg/timeseries"
	"github.com/AmyangXYZ/rtseries/pkg/topics"
	"google.golang.org/protobuf/types/known/structpb"
)

type Node struct {
	path     string
	segment  string
	item     *core.TopicItem
	parent   *Node
	children map[string]*Node
}

// Tree is safe for concurrent use. Mutations are published to the bus
// after the tree lock is released.
type Tree struct {
	mu          sync.RWMutex
	root        *Node
	expiryQueue *utils.ExpiryPriorityQueue[*Node]
	bus         core.EventBus
	now         func() time.Time
	logger      *log.Logger
}

// NewTree creates an empty tree. bus may be nil.
func NewTree(bus core.EventBus) *Tree {
	return &Tree{
		root:        newNode("", "", nil),
		expiryQueue: utils.NewExpiryPriorityQueue[*Node](),
		bus:         bus,
		now:         time.Now,
		logger:      log.New(log.Writer(), "[Tree] ", 0),
	}
}

func newNode(path, segment string, parent *Node) *Node {
	return &Node{path: path, segment: segment, parent: parent, children: make(map[string]*Node)}
}

func (t *Tree) publish(ev notify.Event) {
	if t.bus == nil {
		return
	}
	if err := t.bus.Publish(ev); err != nil {
		t.logger.Printf("Failed to publish %s %s: %v\n", ev.Kind, ev.Path, err)
	}
}

func (t *Tree) find(path string) *Node {
	node := t.root
	for _, segment := range topics.Segments(path) {
		child, ok := node.children[segment]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

func (t *Tree) findItem(path string) (*core.TopicItem, error) {
	if err := topics.ValidatePath(path); err != nil {
		return nil, err
	}
	node := t.find(path)
	if node == nil || node.item == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrTopicNotFound, path)
	}
	return node.item, nil
}

// Add creates a topic. Adding a path that already holds a topic with an
// equal specification reports EXISTS; a different specification fails.
func (t *Tree) Add(path string, spec topics.Specification) (topics.AddResult, error) {
	if err := topics.ValidatePath(path); err != nil {
		return "", err
	}
	if err := spec.Validate(); err != nil {
		return "", err
	}

	t.mu.Lock()
	node := t.root
	prefix := ""
	for _, segment := range topics.Segments(path) {
		if prefix == "" {
			prefix = segment
		} else {
			prefix += topics.PathSeparator + segment
		}
		child, ok := node.children[segment]
		if !ok {
			child = newNode(prefix, segment, node)
			node.children[segment] = child
		}
		node = child
	}

	if node.item != nil {
		existing := node.item.Spec
		t.mu.Unlock()
		if existing.Equal(spec) {
			return topics.EXISTS, nil
		}
		return "", fmt.Errorf("%w: %s is %s", core.ErrExistsMismatch, path, existing)
	}

	item := &core.TopicItem{
		Path:    path,
		Spec:    spec,
		Created: t.now(),
	}
	if spec.IsTimeSeries() {
		item.Series = timeseries.NewSeries(spec.RetainedRange())
	}
	if d := spec.Removal(); d > 0 {
		item.Expiry = item.Created.Add(d)
		t.expiryQueue.UpdateExpiration(node, item.Expiry)
	}
	node.item = item
	t.mu.Unlock()

	t.logger.Printf("Added topic %s (%s)\n", path, spec)
	t.publish(notify.Event{Kind: notify.ADDED, Path: path})
	return topics.CREATED, nil
}

// Get returns a snapshot of the topic at path, or nil.
func (t *Tree) Get(path string) *core.TopicItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, err := t.findItem(path)
	if err != nil {
		return nil
	}
	snapshot := *item
	return &snapshot
}

// Remove deletes the topic at path together with every topic beneath it
// and returns how many topics were removed.
func (t *Tree) Remove(path string) (int, error) {
	if err := topics.ValidatePath(path); err != nil {
		return 0, err
	}

	t.mu.Lock()
	node := t.find(path)
	if node == nil {
		t.mu.Unlock()
		return 0, nil
	}
	removed := t.detach(node)
	t.mu.Unlock()

	for _, p := range removed {
		t.logger.Printf("Removed topic %s\n", p)
		t.publish(notify.Event{Kind: notify.REMOVED, Path: p})
	}
	return len(removed), nil
}

// detach unlinks node and prunes ancestors left without topics or children.
// The caller holds t.mu.
func (t *Tree) detach(node *Node) []string {
	var removed []string
	queue := []*Node{node}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.item != nil {
			removed = append(removed, n.item.Path)
			t.expiryQueue.Remove(n)
			n.item = nil
		}
		for _, child := range n.children {
			queue = append(queue, child)
		}
	}
	sort.Strings(removed)

	for n := node; n != t.root && n.item == nil; n = n.parent {
		if n != node && len(n.children) > 0 {
			break
		}
		delete(n.parent.children, n.segment)
	}
	return removed
}

func checkValue(spec topics.Specification, valueType string, value *structpb.Value) error {
	if valueType != spec.ValueType {
		return fmt.Errorf("%w: topic holds %s values, not %s", core.ErrIncompatibleType, spec.ValueType, valueType)
	}
	dt, err := spec.DataType()
	if err != nil {
		return err
	}
	_, err = dt.Decode(value)
	return err
}

// Set replaces the value of a non time-series topic.
func (t *Tree) Set(path, valueType string, value *structpb.Value) error {
	t.mu.Lock()
	item, err := t.findItem(path)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if item.Spec.IsTimeSeries() {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is a time series", core.ErrIncompatibleType, path)
	}
	if err := checkValue(item.Spec, valueType, value); err != nil {
		t.mu.Unlock()
		return err
	}
	item.Value = value
	t.mu.Unlock()

	t.publish(notify.Event{Kind: notify.UPDATED, Path: path, Value: value})
	return nil
}

// Append adds an event to a time-series topic.
func (t *Tree) Append(path, author, valueType string, value *structpb.Value) (timeseries.Event, error) {
	t.mu.RLock()
	item, err := t.findItem(path)
	if err != nil {
		t.mu.RUnlock()
		return timeseries.Event{}, err
	}
	if !item.Spec.IsTimeSeries() {
		t.mu.RUnlock()
		return timeseries.Event{}, fmt.Errorf("%w: %s is not a time series", core.ErrIncompatibleType, path)
	}
	if err := checkValue(item.Spec, valueType, value); err != nil {
		t.mu.RUnlock()
		return timeseries.Event{}, err
	}
	event := item.Series.Append(author, value)
	t.mu.RUnlock()

	t.publish(notify.Event{Kind: notify.APPENDED, Path: path, Sequence: event.Sequence, Value: value})
	return event, nil
}

func (t *Tree) Range(path string, from uint64, limit int) ([]timeseries.Event, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, err := t.findItem(path)
	if err != nil {
		return nil, err
	}
	if !item.Spec.IsTimeSeries() {
		return nil, fmt.Errorf("%w: %s is not a time series", core.ErrIncompatibleType, path)
	}
	return item.Series.Range(from, limit), nil
}

// GetAll returns snapshots of every topic in breadth-first order.
func (t *Tree) GetAll() []*core.TopicItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]*core.TopicItem, 0)
	queue := []*Node{t.root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.item != nil {
			snapshot := *node.item
			result = append(result, &snapshot)
		}
		segments := make([]string, 0, len(node.children))
		for segment := range node.children {
			segments = append(segments, segment)
		}
		sort.Strings(segments)
		for _, segment := range segments {
			queue = append(queue, node.children[segment])
		}
	}
	return result
}

// Housekeeping removes topics whose REMOVAL delay has elapsed, until ctx
// is done.
func (t *Tree) Housekeeping(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.ClearAll()
			return
		case <-ticker.C:
			t.removeExpired()
		}
	}
}

func (t *Tree) removeExpired() {
	t.mu.RLock()
	queue := t.expiryQueue
	t.mu.RUnlock()
	now := t.now()
	for _, expired := range queue.PopExpired(now) {
		t.expire(expired.Value, now)
	}
}

// expire removes the topic held by node if it is still in the tree and
// its own REMOVAL deadline has passed. A node popped from the queue may
// have been removed, or its path given to a new topic, in the meantime.
func (t *Tree) expire(node *Node, now time.Time) {
	t.mu.Lock()
	item := node.item
	if item == nil || item.Expiry.IsZero() || item.Expiry.After(now) || t.find(item.Path) != node {
		t.mu.Unlock()
		return
	}
	removed := t.detach(node)
	t.mu.Unlock()

	t.logger.Printf("Removed expired topic %s\n", item.Path)
	for _, p := range removed {
		t.publish(notify.Event{Kind: notify.REMOVED, Path: p})
	}
}

func (t *Tree) ClearAll() {
	t.mu.Lock()
	t.root = newNode("", "", nil)
	t.expiryQueue = utils.NewExpiryPriorityQueue[*Node]()
	t.mu.Unlock()
	t.logger.Println("All topics cleared")
}

var _ core.Tree = (*Tree)(nil)
