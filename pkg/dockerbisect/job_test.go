package dockerbisect

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/image"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJobFromConfig(t *testing.T) {
	t.Run("All fields are read", func(t *testing.T) {
		yml := `
image: "app:latest"
command: ["cat", "/etc/os-release"]
entrypoint: ["/bin/sh", "-c"]
timeout: 3
maxConcurrentProbes: 4
`

		job, err := GetJobFromConfig(strings.NewReader(yml))
		require.NoError(t, err, "GetJobFromConfig returned an error")

		assert.Equal(t, "app:latest", job.Image, "Mismatch in job field")
		assert.Equal(t, []string{"cat", "/etc/os-release"}, job.Command, "Mismatch in job field")
		assert.Equal(t, []string{"/bin/sh", "-c"}, job.Entrypoint, "Mismatch in job field")
		assert.Equal(t, 3*time.Second, job.Timeout, "Mismatch in job field")
		assert.Equal(t, uint(4), job.MaxConcurrentProbes, "Mismatch in job field")
	})

	t.Run("Defaults are applied", func(t *testing.T) {
		job, err := GetJobFromConfig(strings.NewReader(`image: "app"`))
		require.NoError(t, err, "GetJobFromConfig returned an error")

		assert.Equal(t, 10*time.Second, job.Timeout, "Timeout default not applied")
		assert.Equal(t, uint(0), job.MaxConcurrentProbes, "Mismatch in job field")
	})

	t.Run("Negative timeouts fail", func(t *testing.T) {
		_, err := GetJobFromConfig(strings.NewReader("image: app\ntimeout: -1"))
		assert.Error(t, err)
	})
}

type fakeHistory []image.HistoryResponseItem

func (h fakeHistory) ImageHistory(context.Context, string) ([]image.HistoryResponseItem, error) {
	return h, nil
}

// layerID returns a valid docker layer ID for the passed height
func layerID(height int) string {
	return digest.FromString(string(rune('a' + height))).String()
}

// historyOf returns an image history with the passed commands, oldest first, together with a prober returning the passed outputs.
// Layers with an empty output are missing from the cache.
func historyOf(commands, outputs []string) (fakeHistory, *mapProber) {
	var history fakeHistory
	prober := &mapProber{
		outputs: make(map[string]string),
		probed:  make(map[string]int),
	}
	for i := len(commands) - 1; i >= 0; i-- {
		id := "<missing>"
		if outputs[i] != "" {
			id = layerID(i)
			prober.outputs[id] = outputs[i]
		}
		history = append(history, image.HistoryResponseItem{ID: id, CreatedBy: commands[i]})
	}
	return history, prober
}

func TestJobRun(t *testing.T) {
	t.Run("Transitions are found", func(t *testing.T) {
		history, prober := historyOf(
			[]string{"base", "apk add curl", "rm /bin/cat", "echo", "apk add cat"},
			[]string{"", "A", "B", "B", "C"},
		)
		job := Job{
			Image:   "app",
			Log:     logrus.New(),
			Prober:  prober,
			History: history,
		}

		res, err := job.Run(context.Background())
		require.NoError(t, err, "Run returned an error")

		SortTransitions(res.Transitions)
		before1 := ProbeResult{Layer: Layer{Height: 1, ID: layerID(1), Command: "apk add curl"}, Output: "A"}
		before2 := ProbeResult{Layer: Layer{Height: 3, ID: layerID(3), Command: "echo"}, Output: "B"}
		assert.Equal(t, []Transition{
			{Before: &before1, After: ProbeResult{Layer: Layer{Height: 2, ID: layerID(2), Command: "rm /bin/cat"}, Output: "B"}},
			{Before: &before2, After: ProbeResult{Layer: Layer{Height: 4, ID: layerID(4), Command: "apk add cat"}, Output: "C"}},
		}, res.Transitions, "Wrong transitions")
		assert.Equal(t, []SkippedLayer{{Height: 0, Command: "base"}}, res.Skipped, "Wrong skipped layers")
		assert.Len(t, res.History, 5, "Wrong history")

		// The job reports its outcome once done
		select {
		case <-job.Done():
		default:
			assert.Fail(t, "Done channel not closed after Run returned")
		}
		stored, err := job.Result()
		require.NoError(t, err)
		assert.Same(t, res, stored, "Stored result differs from returned result")

		done, total := job.Progress().Snapshot()
		assert.Equal(t, 5, total, "Wrong progress total")
		assert.Positive(t, done, "No progress was made")
	})

	t.Run("Progress is complete once done", func(t *testing.T) {
		history, prober := historyOf(
			[]string{"base", "apk add curl", "echo", "echo"},
			[]string{"", "A", "A", "A"},
		)
		job := Job{
			Image:   "app",
			Prober:  prober,
			History: history,
		}

		res, err := job.Run(context.Background())
		require.NoError(t, err, "Run returned an error")
		require.Len(t, res.Transitions, 1)
		assert.Nil(t, res.Transitions[0].Before, "Unchanged output reported as a change")

		done, total := job.Progress().Snapshot()
		assert.Equal(t, 4, total, "Wrong progress total")
		assert.Equal(t, total, done, "Progress incomplete after Run returned")
	})

	t.Run("Too few layers in cache fail before probing", func(t *testing.T) {
		history, prober := historyOf(
			[]string{"base", "apk add curl", "echo"},
			[]string{"", "", "A"},
		)
		job := Job{
			Image:   "app",
			Prober:  prober,
			History: history,
		}

		res, err := job.Run(context.Background())
		assert.ErrorIs(t, err, ErrInsufficientLayers)
		require.NotNil(t, res, "No result returned")
		assert.Len(t, res.Skipped, 2, "Skipped layers not reported")
		assert.Empty(t, prober.probed, "Layers were probed")
		assert.Nil(t, job.Progress(), "Progress set without bisecting")
	})

	t.Run("Prober errors are propagated", func(t *testing.T) {
		errProbe := errors.New("daemon gone")
		history, _ := historyOf([]string{"a", "b", "c"}, []string{"A", "B", "C"})
		job := Job{
			Image: "app",
			Prober: funcProber(func(context.Context, string) (string, error) {
				return "", errProbe
			}),
			History: history,
		}

		_, err := job.Run(context.Background())
		assert.ErrorIs(t, err, errProbe)

		_, err = job.Result()
		assert.ErrorIs(t, err, errProbe, "Stored error differs from returned error")
	})

	t.Run("A command is required without a prober", func(t *testing.T) {
		job := Job{Image: "app", History: fakeHistory{}}

		_, err := job.Run(context.Background())
		assert.Error(t, err)
	})

	t.Run("Result is unavailable while running", func(t *testing.T) {
		job := Job{}

		_, err := job.Result()
		assert.ErrorIs(t, err, ErrJobRunning)
	})
}
