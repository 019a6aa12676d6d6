package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cart-discounts/internal/apperror"
	"cart-discounts/internal/models"
	"cart-discounts/internal/services"
)

type stubScanRunner struct {
	summary  *models.ScanSummary
	shared   bool
	result   *models.SendToUserResult
	err      error
	lastOpts models.ScanOptions
	lastReq  models.SendToUserRequest
	lastUser int64
}

func (s *stubScanRunner) RunNow(ctx context.Context, opts models.ScanOptions) (*models.ScanSummary, bool, error) {
	s.lastOpts = opts
	return s.summary, s.shared, s.err
}

func (s *stubScanRunner) SendToUser(ctx context.Context, userID int64, req models.SendToUserRequest) (*models.SendToUserResult, error) {
	s.lastUser = userID
	s.lastReq = req
	return s.result, s.err
}

type stubRunHistory struct {
	summary *models.ScanSummary
	source  models.TriggerSource
	err     error
}

func (s *stubRunHistory) LastRun(ctx context.Context, source models.TriggerSource) (*models.ScanSummary, error) {
	s.source = source
	if s.err != nil {
		return nil, s.err
	}
	if s.summary == nil {
		return nil, apperror.NotFound("no scan runs recorded", nil)
	}
	return s.summary, nil
}

func TestScanHandler_RunUsesAdminBatchSource(t *testing.T) {
	runner := &stubScanRunner{summary: &models.ScanSummary{Source: models.TriggerAdminBatch, Candidates: 2, EmailsSent: 2}}
	h := NewScanHandler(runner, nil, newTestLogger())

	rr := httptest.NewRecorder()
	h.Run(rr, httptest.NewRequest(http.MethodPost, "/api/admin/scan/run", bytes.NewBufferString(`{"force":true}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if runner.lastOpts.Source != models.TriggerAdminBatch || !runner.lastOpts.Force || runner.lastOpts.DryRun {
		t.Fatalf("unexpected options %+v", runner.lastOpts)
	}
}

func TestScanHandler_RunDryRunFromQuery(t *testing.T) {
	runner := &stubScanRunner{summary: &models.ScanSummary{DryRun: true}, shared: true}
	h := NewScanHandler(runner, nil, newTestLogger())

	rr := httptest.NewRecorder()
	h.Run(rr, httptest.NewRequest(http.MethodPost, "/api/admin/scan/run?dry_run=true", nil))

	if rr.Code != http.StatusOK || !runner.lastOpts.DryRun {
		t.Fatalf("expected dry run, got %d %+v", rr.Code, runner.lastOpts)
	}
	var resp runResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Shared {
		t.Fatalf("expected shared flag in response")
	}
}

func TestScanHandler_RunLocked(t *testing.T) {
	runner := &stubScanRunner{err: apperror.Conflict("another discount scan is already running", nil)}
	h := NewScanHandler(runner, nil, newTestLogger())

	rr := httptest.NewRecorder()
	h.Run(rr, httptest.NewRequest(http.MethodPost, "/api/admin/scan/run", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestScanHandler_SendToUserExistingCode(t *testing.T) {
	existing := &models.DiscountCode{ID: 3, UserID: 9, Code: "ZXCV5678", Percent: 10}
	runner := &stubScanRunner{err: &services.ExistingCodeError{Code: existing}}
	h := NewScanHandler(runner, nil, newTestLogger())

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/api/admin/users/9/send-discount", nil), "userID", "9")
	rr := httptest.NewRecorder()
	h.SendToUser(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("confirmation case must be 200, got %d", rr.Code)
	}
	var resp struct {
		Success   bool                `json:"success"`
		ErrorCode string              `json:"error_code"`
		Data      models.DiscountCode `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Success || resp.ErrorCode != ErrorCodeExistingCode || resp.Data.Code != "ZXCV5678" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestScanHandler_SendToUserFlags(t *testing.T) {
	runner := &stubScanRunner{result: &models.SendToUserResult{
		Outcome:   models.SendOutcomeExisting,
		Code:      &models.DiscountCode{ID: 3, Code: "ZXCV5678"},
		EmailSent: true,
	}}
	h := NewScanHandler(runner, nil, newTestLogger())

	body := bytes.NewBufferString(`{"force_send":true,"enviar_existente":true}`)
	req := withURLParams(httptest.NewRequest(http.MethodPost, "/api/admin/users/9/send-discount", body), "userID", "9")
	rr := httptest.NewRecorder()
	h.SendToUser(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if runner.lastUser != 9 || !runner.lastReq.ForceSend || !runner.lastReq.SendExisting {
		t.Fatalf("flags not passed through: user=%d req=%+v", runner.lastUser, runner.lastReq)
	}
}

func TestScanHandler_SendToUserNotFound(t *testing.T) {
	runner := &stubScanRunner{err: apperror.NotFound("user not found", nil)}
	h := NewScanHandler(runner, nil, newTestLogger())

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/api/admin/users/9/send-discount", nil), "userID", "9")
	rr := httptest.NewRecorder()
	h.SendToUser(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestScanHandler_LastRun(t *testing.T) {
	history := &stubRunHistory{summary: &models.ScanSummary{Source: models.TriggerScheduled, EmailsSent: 4}}
	h := NewScanHandler(&stubScanRunner{}, history, newTestLogger())

	rr := httptest.NewRecorder()
	h.LastRun(rr, httptest.NewRequest(http.MethodGet, "/api/admin/scan/last-run?source=scheduled", nil))
	if rr.Code != http.StatusOK || history.source != models.TriggerScheduled {
		t.Fatalf("expected scheduled summary, got %d source=%q", rr.Code, history.source)
	}

	rr = httptest.NewRecorder()
	h.LastRun(rr, httptest.NewRequest(http.MethodGet, "/api/admin/scan/last-run?source=bogus", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown source, got %d", rr.Code)
	}
}

func TestScanHandler_LastRunWithoutHistory(t *testing.T) {
	h := NewScanHandler(&stubScanRunner{}, nil, newTestLogger())

	rr := httptest.NewRecorder()
	h.LastRun(rr, httptest.NewRequest(http.MethodGet, "/api/admin/scan/last-run", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	h = NewScanHandler(&stubScanRunner{}, &stubRunHistory{}, newTestLogger())
	rr = httptest.NewRecorder()
	h.LastRun(rr, httptest.NewRequest(http.MethodGet, "/api/admin/scan/last-run", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when nothing recorded, got %d", rr.Code)
	}
}

func TestScanHandler_LastRunRedisDown(t *testing.T) {
	history := &stubRunHistory{err: apperror.Unavailable("scan run history is unavailable", nil)}
	h := NewScanHandler(&stubScanRunner{}, history, newTestLogger())

	rr := httptest.NewRecorder()
	h.LastRun(rr, httptest.NewRequest(http.MethodGet, "/api/admin/scan/last-run", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
