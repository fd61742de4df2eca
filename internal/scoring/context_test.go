package scoring

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thirdumpire/crease/internal/domain"
)

func TestMatchContextSerializesCommands(t *testing.T) {
	mc := newMatchContext("m1", &State{Totals: map[string]int{}})
	defer mc.Close()

	// Unsynchronized counter: only single-goroutine execution keeps it
	// exact across concurrent submitters.
	n := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, mc.Do(context.Background(), func(*State) error {
					n++
					return nil
				}))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, n)
}

func TestCloseDuringConcurrentDoNeverPanics(t *testing.T) {
	mc := newMatchContext("m1", &State{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				err := mc.Do(context.Background(), func(*State) error { return nil })
				if err != nil {
					// After shutdown wins the race the command is refused,
					// never dropped on a closed channel.
					assert.Equal(t, domain.ErrTransient, domain.KindOf(err))
				}
			}
		}()
	}
	mc.Close()
	wg.Wait()

	err := mc.Do(context.Background(), func(*State) error { return nil })
	require.Error(t, err)
	assert.Equal(t, domain.ErrTransient, domain.KindOf(err))

	// Idempotent: eviction and registry shutdown may both close.
	mc.Close()
}
