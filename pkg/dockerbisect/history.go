package dockerbisect

import (
	"context"
	"slices"
	"strings"

	"github.com/docker/docker/api/types/image"
	"github.com/opencontainers/go-digest"
)

// A HistorySource returns the history of an image, newest entry first. The docker client satisfies this interface
type HistorySource interface {
	ImageHistory(ctx context.Context, imageID string) ([]image.HistoryResponseItem, error)
}

// LayersFromHistory converts an image history as returned by docker, newest entry first, into layers ordered by height.
// The base layer gets height 0.
// Entries without a concrete identifier, which docker reports as "<missing>", are returned as skipped layers and are not part of the probeable layers.
// all contains every entry, with an empty ID for skipped ones.
func LayersFromHistory(history []image.HistoryResponseItem) (layers []Layer, skipped []SkippedLayer, all []Layer) {
	entries := slices.Clone(history)
	slices.Reverse(entries)

	for height, entry := range entries {
		layer := Layer{Height: height, Command: entry.CreatedBy}
		if _, err := digest.Parse(entry.ID); err != nil {
			skipped = append(skipped, SkippedLayer{Height: height, Command: entry.CreatedBy})
		} else {
			layer.ID = entry.ID
			layers = append(layers, layer)
		}
		all = append(all, layer)
	}
	return layers, skipped, all
}

// Truncate shortens a layer command for display.
// Only the first line is kept, docker's "#(nop)" prefix is removed and the result is cut to at most max runes.
// A max of 0 or less doesn't cut the line.
func Truncate(s string, max int) string {
	s, _, _ = strings.Cut(s, "\n")
	if _, cmd, found := strings.Cut(s, "#(nop) "); found {
		s = strings.TrimSpace(cmd)
	}
	if max <= 0 {
		return s
	}
	for i := range s {
		if max == 0 {
			return s[:i]
		}
		max--
	}
	return s
}
