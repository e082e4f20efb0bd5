package dockerbisect

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	t.Run("Concurrent updates are all counted", func(t *testing.T) {
		progress := NewProgress(1000)

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					progress.Add(1)
				}
			}()
		}
		wg.Wait()

		done, total := progress.Snapshot()
		assert.Equal(t, 500, done)
		assert.Equal(t, 1000, total)
	})

	t.Run("Done is clamped to total", func(t *testing.T) {
		progress := NewProgress(3)

		done, total := progress.Add(5)
		assert.Equal(t, 3, done)
		assert.Equal(t, 3, total)
	})

	t.Run("Finish completes progress", func(t *testing.T) {
		progress := NewProgress(4)
		progress.Add(1)
		progress.Finish()

		done, total := progress.Snapshot()
		assert.Equal(t, 4, done)
		assert.Equal(t, 4, total)
	})
}
