package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerName(t *testing.T) {
	t.Run("First name is used", func(t *testing.T) {
		assert.Equal(t, "dockerbisect-abc", containerName("1234", []string{"/dockerbisect-abc", "/other"}))
	})

	t.Run("Unnamed containers fall back to their ID", func(t *testing.T) {
		assert.NotPanics(t, func() {
			assert.Equal(t, "1234", containerName("1234", nil))
		})
	})
}
