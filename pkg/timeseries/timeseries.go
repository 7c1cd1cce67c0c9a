// Package timeseries stores the ordered events of a time-series topic.
package timeseries

import (
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

type Event struct {
	Sequence  uint64
	Timestamp time.Time
	Author    string
	Value     *structpb.Value
}

func (e Event) ToStruct() *structpb.Struct {
	value := e.Value
	if value == nil {
		value = structpb.NewNullValue()
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"sequence":  structpb.NewNumberValue(float64(e.Sequence)),
		"timestamp": structpb.NewNumberValue(float64(e.Timestamp.UnixMicro())),
		"author":    structpb.NewStringValue(e.Author),
		"value":     value,
	}}
}

func FromStruct(st *structpb.Struct) Event {
	fields := st.GetFields()
	return Event{
		Sequence:  uint64(fields["sequence"].GetNumberValue()),
		Timestamp: time.UnixMicro(int64(fields["timestamp"].GetNumberValue())),
		Author:    fields["author"].GetStringValue(),
		Value:     fields["value"],
	}
}

// Series assigns sequence numbers in append order, starting at 0. When
// retained is positive only the newest retained events are kept.
type Series struct {
	mu       sync.RWMutex
	events   []Event
	next     uint64
	retained int
	now      func() time.Time
}

func NewSeries(retained int) *Series {
	return &Series{retained: retained, now: time.Now}
}

func (s *Series) Append(author string, value *structpb.Value) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	event := Event{
		Sequence:  s.next,
		Timestamp: s.now(),
		Author:    author,
		Value:     value,
	}
	s.next++
	s.events = append(s.events, event)
	if s.retained > 0 && len(s.events) > s.retained {
		s.events = append([]Event(nil), s.events[len(s.events)-s.retained:]...)
	}
	return event
}

// Range returns up to limit events with a sequence of at least from. A
// limit of zero or less returns every matching event.
func (s *Series) Range(from uint64, limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Event, 0)
	for _, e := range s.events {
		if e.Sequence < from {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Latest returns the most recent event.
func (s *Series) Latest() (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	return s.events[len(s.events)-1], true
}
