package dockerbisect

import (
	"fmt"
	"io"
	"slices"

	"github.com/mgutz/ansi"
)

// ReportOptions configures how a result is written by [WriteReport]
type ReportOptions struct {
	Width int  // The max amount of characters of a printed layer command. 0 or less prints the whole first line
	Bold  bool // Whether headers and commands should be printed in bold
}

// WriteReport writes a human readable report of the passed result to w.
// Every layer of the history is listed in order of height, with the output which a layer caused printed below it.
func WriteReport(w io.Writer, res *Result, opts ReportOptions) error {
	bold := func(s string) string { return s }
	if opts.Bold {
		bold = ansi.ColorFunc("default+b")
	}

	var err error
	printf := func(format string, a ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, a...)
		}
	}

	if len(res.Skipped) != 0 {
		printf("%s\n\n", bold("Skipped missing layers:"))
		for _, s := range res.Skipped {
			printf("%-3d: %s\n", s.Height, Truncate(s.Command, opts.Width))
		}
		printf("\n")
	}

	transitions := slices.Clone(res.Transitions)
	SortTransitions(transitions)

	// Outputs caused by a layer, keyed by the layer's height
	caused := make(map[int]string)
	var unchanged *ProbeResult
	for _, t := range transitions {
		if t.Before == nil {
			after := t.After
			unchanged = &after
			continue
		}
		caused[t.After.Layer.Height] = t.After.Output
	}

	printf("%s\n\n", bold("Results ==>"))
	for _, layer := range res.History {
		command := bold(Truncate(layer.Command, opts.Width))
		if out, ok := caused[layer.Height]; ok {
			printf("%d: %s CAUSED:\n\n %s\n", layer.Height, command, out)
		} else {
			printf("%d: %s\n", layer.Height, command)
		}
	}
	if unchanged != nil {
		printf("\n%s\n\n %s\n", bold("No layer changed the output:"), unchanged.Output)
	}

	return err
}
