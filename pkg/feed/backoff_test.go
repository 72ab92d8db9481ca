package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff_DoublesUpToMaximum(t *testing.T) {
	t.Parallel()

	client := NewClient("ws://unused", func(Event) {},
		WithBackoff(time.Second, 30*time.Second))

	schedule := []time.Duration{}
	for cur := client.minBackoff; len(schedule) < 8; {
		schedule = append(schedule, cur)
		cur = client.nextBackoff(cur)
	}

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, schedule)
}

func TestNextBackoff_MaximumBelowDoubleOfMinimum(t *testing.T) {
	t.Parallel()

	client := NewClient("ws://unused", func(Event) {},
		WithBackoff(5*time.Second, 8*time.Second))

	assert.Equal(t, 8*time.Second, client.nextBackoff(client.minBackoff))
	assert.Equal(t, 8*time.Second, client.nextBackoff(8*time.Second))
}
