package main

import (
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/natserract/idmcexport/metadataexport/schema/postgres"
)

func TestWriteRuns(t *testing.T) {
	started := time.Date(2025, 6, 9, 2, 0, 0, 0, time.UTC)
	runs := []postgres.ExportRun{
		{
			StartedAt:      pgtype.Timestamptz{Time: started, Valid: true},
			FinishedAt:     pgtype.Timestamptz{Time: started.Add(3*time.Minute + 400*time.Millisecond), Valid: true},
			ExportFilename: "monthly_report",
			ArtifactPath:   pgtype.Text{String: "/opt/idmc_extract/monthly_report.xlsx", Valid: true},
			Status:         "succeeded",
		},
		{
			StartedAt: pgtype.Timestamptz{Time: started.Add(-7 * 24 * time.Hour), Valid: true},
			Status:    "running",
		},
	}

	var out strings.Builder
	if err := writeRuns(&out, runs, time.UTC); err != nil {
		t.Fatalf("writeRuns() error = %v", err)
	}

	want := strings.Join([]string{
		"STARTED              DURATION  STATUS     EXIT  EXPORT          ARTIFACT",
		"2025-06-09 02:00:00  3m0s      succeeded  0     monthly_report  /opt/idmc_extract/monthly_report.xlsx",
		"2025-06-02 02:00:00  -         running    0     -               -",
		"",
	}, "\n")
	if got := out.String(); got != want {
		t.Errorf("writeRuns() =\n%s\nwant\n%s", got, want)
	}
}

func TestWriteRuns_empty(t *testing.T) {
	var out strings.Builder
	if err := writeRuns(&out, nil, time.UTC); err != nil {
		t.Fatalf("writeRuns() error = %v", err)
	}
	if got := out.String(); !strings.HasPrefix(got, "STARTED") || strings.Count(got, "\n") != 1 {
		t.Errorf("writeRuns(nil) = %q, want header only", got)
	}
}

func TestWriteRuns_location(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	runs := []postgres.ExportRun{{
		StartedAt: pgtype.Timestamptz{Time: time.Date(2025, 6, 9, 20, 30, 0, 0, time.UTC), Valid: true},
		Status:    "failed",
		ExitCode:  2,
	}}

	var out strings.Builder
	if err := writeRuns(&out, runs, loc); err != nil {
		t.Fatalf("writeRuns() error = %v", err)
	}
	if !strings.Contains(out.String(), "2025-06-10 03:30:00") {
		t.Errorf("writeRuns() = %q, want start time in UTC+7", out.String())
	}
}
