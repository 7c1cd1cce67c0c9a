package timeseries

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func values(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Value.GetStringValue())
	}
	return out
}

func TestAppendAssignsSequenceInCallOrder(t *testing.T) {
	s := NewSeries(0)
	for i := 1; i <= 4; i++ {
		e := s.Append("admin", structpb.NewStringValue(fmt.Sprintf("Value %d", i)))
		assert.Equal(t, uint64(i-1), e.Sequence)
	}

	events := s.Range(0, 0)
	assert.Equal(t, []string{"Value 1", "Value 2", "Value 3", "Value 4"}, values(events))
	assert.Equal(t, "admin", events[0].Author)
}

func TestRetainedRangeEvictsOldest(t *testing.T) {
	s := NewSeries(2)
	for i := 1; i <= 5; i++ {
		s.Append("a", structpb.NewStringValue(fmt.Sprintf("v%d", i)))
	}

	require.Equal(t, 2, s.Len())
	events := s.Range(0, 0)
	assert.Equal(t, []string{"v4", "v5"}, values(events))
	assert.Equal(t, uint64(4), events[1].Sequence)
}

func TestRangeFromAndLimit(t *testing.T) {
	s := NewSeries(0)
	for i := 0; i < 10; i++ {
		s.Append("a", structpb.NewStringValue(fmt.Sprint(i)))
	}

	assert.Equal(t, []string{"3", "4"}, values(s.Range(3, 2)))
	assert.Empty(t, s.Range(10, 0))

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(9), latest.Sequence)
}

func TestConcurrentAppendsGetUniqueSequences(t *testing.T) {
	s := NewSeries(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append("a", structpb.NewStringValue("x"))
		}()
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for _, e := range s.Range(0, 0) {
		assert.False(t, seen[e.Sequence])
		seen[e.Sequence] = true
	}
	assert.Len(t, seen, 50)
}

func TestEventStruct(t *testing.T) {
	e := NewSeries(0).Append("control", structpb.NewStringValue("x"))
	decoded := FromStruct(e.ToStruct())

	assert.Equal(t, e.Sequence, decoded.Sequence)
	assert.Equal(t, e.Author, decoded.Author)
	assert.Equal(t, e.Timestamp.UnixMicro(), decoded.Timestamp.UnixMicro())
	assert.Equal(t, "x", decoded.Value.GetStringValue())
}
