package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordScanRun(t *testing.T) {
	before := testutil.ToFloat64(ScanRunsTotal.WithLabelValues("command", "completed"))
	RecordScanRun("command", "completed", 2*time.Second)
	after := testutil.ToFloat64(ScanRunsTotal.WithLabelValues("command", "completed"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestRecordCodeIssued(t *testing.T) {
	before := testutil.ToFloat64(CodesIssuedTotal.WithLabelValues("scheduled"))
	RecordCodeIssued("scheduled")
	RecordCodeIssued("scheduled")
	after := testutil.ToFloat64(CodesIssuedTotal.WithLabelValues("scheduled"))
	if after-before != 2 {
		t.Fatalf("expected counter to grow by 2, got %v", after-before)
	}
}

func TestRecordEmail(t *testing.T) {
	sentBefore := testutil.ToFloat64(EmailsTotal.WithLabelValues("sent"))
	failedBefore := testutil.ToFloat64(EmailsTotal.WithLabelValues("failed"))

	RecordEmail(true)
	RecordEmail(false)

	if got := testutil.ToFloat64(EmailsTotal.WithLabelValues("sent")) - sentBefore; got != 1 {
		t.Fatalf("expected one sent email, got %v", got)
	}
	if got := testutil.ToFloat64(EmailsTotal.WithLabelValues("failed")) - failedBefore; got != 1 {
		t.Fatalf("expected one failed email, got %v", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/admin/scheduler", "200"))
	RecordHTTPRequest("GET", "/api/admin/scheduler", 200, 15*time.Millisecond)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/admin/scheduler", "200"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v", after-before)
	}
}
