package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"cart-discounts/internal/models"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--dry-run", "--force"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !opts.dryRun || !opts.force {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = parseFlags(nil, io.Discard)
	if err != nil || opts.dryRun || opts.force {
		t.Fatalf("unexpected defaults %+v (%v)", opts, err)
	}

	if _, err := parseFlags([]string{"--unknown"}, io.Discard); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
	// у прогона нет ограничения по времени
	if _, err := parseFlags([]string{"--timeout=5m"}, io.Discard); err == nil {
		t.Fatalf("expected error for --timeout")
	}
	if _, err := parseFlags([]string{"extra"}, io.Discard); err == nil {
		t.Fatalf("expected error for positional argument")
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	printSummary(&buf, &models.ScanSummary{
		Candidates:  3,
		CodesIssued: 2,
		EmailsSent:  2,
		Skipped:     1,
		StartedAt:   start,
		FinishedAt:  start.Add(1500 * time.Millisecond),
	})
	out := buf.String()
	for _, want := range []string{"Candidates:   3", "Codes issued: 2", "Emails sent:  2", "Skipped:      1", "Duration:     1.5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestPrintSummary_DryRun(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &models.ScanSummary{
		DryRun: true,
		DryRunUsers: []models.ScanCandidate{
			{UserID: 7, Email: "ana@example.com", InstagramAccount: "ana", CartItems: 2},
		},
	})
	out := buf.String()
	if !strings.Contains(out, "DRY RUN: 1 user(s)") || !strings.Contains(out, "user 7 <ana@example.com> @ana, 2 item(s)") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestPrintSummary_Disabled(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &models.ScanSummary{Disabled: true})
	if !strings.Contains(buf.String(), "No active discount configuration") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
