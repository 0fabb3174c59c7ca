package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/natserract/idmcexport/metadataexport/schema/postgres"
)

// writeRuns renders runs as an aligned table, start times shown in loc.
func writeRuns(out io.Writer, runs []postgres.ExportRun, loc *time.Location) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDURATION\tSTATUS\tEXIT\tEXPORT\tARTIFACT")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt.Valid {
			duration = r.FinishedAt.Time.Sub(r.StartedAt.Time).Round(time.Second).String()
		}
		export := r.ExportFilename
		if export == "" {
			export = "-"
		}
		artifact := "-"
		if r.ArtifactPath.Valid {
			artifact = r.ArtifactPath.String
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.StartedAt.Time.In(loc).Format(time.DateTime),
			duration,
			r.Status,
			r.ExitCode,
			export,
			artifact)
	}
	return w.Flush()
}
