package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopExpiredReturnsEarliestFirst(t *testing.T) {
	pq := NewExpiryPriorityQueue[string]()
	now := time.Now()
	pq.UpdateExpiration("late", now.Add(time.Hour))
	pq.UpdateExpiration("second", now.Add(-time.Second))
	pq.UpdateExpiration("first", now.Add(-time.Minute))

	expired := pq.PopExpired(now)
	require.Len(t, expired, 2)
	assert.Equal(t, "first", expired[0].Value)
	assert.Equal(t, "second", expired[1].Value)
	assert.Equal(t, 1, pq.Len())
	assert.Equal(t, "late", pq.Peek().Value)
}

func TestUpdateExpirationReschedules(t *testing.T) {
	pq := NewExpiryPriorityQueue[int]()
	now := time.Now()
	pq.UpdateExpiration(1, now.Add(-time.Second))
	pq.UpdateExpiration(1, now.Add(time.Hour))

	assert.Equal(t, 1, pq.Len())
	assert.Empty(t, pq.PopExpired(now))
}

func TestRemove(t *testing.T) {
	pq := NewExpiryPriorityQueue[int]()
	pq.UpdateExpiration(7, time.Now())

	assert.NotNil(t, pq.Remove(7))
	assert.Nil(t, pq.Remove(7))
	assert.Nil(t, pq.Peek())
}
