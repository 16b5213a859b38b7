package cli

import (
	"fmt"
	"io"

	"picoedge.com/ijpkg/internal/application/services"
)

// printSummary reports what a run produced, one line per stage output
func printSummary(w io.Writer, r *services.RunResult) {
	if r == nil {
		return
	}
	if r.Resolution != nil {
		fmt.Fprintf(w, "Resolved %d artifacts and %s (%d platform jars)\n",
			len(r.Resolution.Artifacts), r.Resolution.Platform.SDK, len(r.Resolution.Platform.Jars))
	}
	if r.Compiled != nil {
		fmt.Fprintf(w, "Compiled %d sources into %s\n", r.Compiled.SourceCount, r.Compiled.ClassesDir)
	}
	if r.Patched != nil {
		d := r.Patched.Descriptor()
		fmt.Fprintf(w, "Patched plugin.xml: %s %s, builds %s\n", d.Identifier(), d.Version, buildRange(d.SinceBuild, d.UntilBuild))
	}
	if r.Archive != nil {
		fmt.Fprintf(w, "Built %s (%d bytes, sha256 %s)\n", r.Archive.Path, r.Archive.Size, r.Archive.SHA256)
	}
	if r.Published != nil {
		fmt.Fprintf(w, "Published to %s (channel %s)\n", r.Published.Endpoint, channelName(r.Published.Channel))
	}
}

func buildRange(since, until string) string {
	if until == "" {
		return since + "+"
	}
	return since + " to " + until
}

func channelName(channel string) string {
	if channel == "" {
		return "stable"
	}
	return channel
}
