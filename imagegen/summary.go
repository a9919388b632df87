package imagegen

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"gallery_style/sdruntime"
)

// PrintSummary writes the end-of-run lines:
//
//	[meta] wrote outputs/metadata.jsonl
//	Saved 5 image(s) to outputs
//
// The metadata line appears only when the request saved JSON.
func PrintSummary(w io.Writer, req GenerationRequest, records []MetadataRecord) {
	if req.SaveJSON {
		color.New(color.FgHiBlack).Fprint(w, "[meta] ")
		fmt.Fprintf(w, "wrote %s\n", MetadataPath(req.OutDir))
	}
	color.New(color.FgGreen, color.Bold).Fprintf(w, "Saved %d image(s)", len(records))
	fmt.Fprintf(w, " to %s\n", req.OutDir)
}

// PrintSamplers lists the sampler set, marking the default.
func PrintSamplers(w io.Writer) {
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintln(w, "Samplers")
	for _, s := range sdruntime.Samplers() {
		line := fmt.Sprintf("  %-7s %-34s webui=%q", s.String(), s.SchedulerName(), s.WebUIName())
		if s == sdruntime.DefaultSampler {
			fmt.Fprint(w, line)
			color.New(color.FgGreen).Fprintln(w, " (default)")
			continue
		}
		fmt.Fprintln(w, line)
	}
}
