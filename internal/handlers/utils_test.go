package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cart-discounts/internal/models"
)

func TestWriteJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSONResponse(rr, http.StatusOK, map[string]string{"ok": "true"})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if body := rr.Body.String(); body == "" {
		t.Fatalf("empty body")
	}
}

func TestInt64URLParam(t *testing.T) {
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "id", "42")
	id, err := int64URLParam(req, "id")
	if err != nil || id != 42 {
		t.Fatalf("expected 42, got %d (%v)", id, err)
	}

	for _, raw := range []string{"abc", "0", "-3"} {
		req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), "id", raw)
		if _, err := int64URLParam(req, "id"); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}

	if _, err := int64URLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id"); err == nil {
		t.Fatalf("expected error for missing param")
	}
}

func TestPagination(t *testing.T) {
	limit, offset := pagination(httptest.NewRequest(http.MethodGet, "/?limit=10&offset=20", nil))
	if limit != 10 || offset != 20 {
		t.Fatalf("unexpected limit/offset %d/%d", limit, offset)
	}

	limit, offset = pagination(httptest.NewRequest(http.MethodGet, "/?limit=1000&offset=-1", nil))
	if limit != defaultPageLimit || offset != 0 {
		t.Fatalf("expected defaults, got %d/%d", limit, offset)
	}
}

func TestDecodeJSONBody(t *testing.T) {
	var dst models.SendToUserRequest

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := decodeJSONBody(req, &dst, true); err != nil {
		t.Fatalf("empty body must be allowed: %v", err)
	}
	if err := decodeJSONBody(req, &dst, false); err == nil {
		t.Fatalf("expected error for required body")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"force_send":true}`))
	if err := decodeJSONBody(req, &dst, false); err != nil || !dst.ForceSend {
		t.Fatalf("expected force_send decoded, got %+v (%v)", dst, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	if err := decodeJSONBody(req, &dst, true); err == nil {
		t.Fatalf("expected error for malformed body")
	}
}

func TestValidationMessage(t *testing.T) {
	err := validate.Struct(models.DiscountConfigurationRequest{InactivityDays: 0, DiscountPercent: 150})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := validationMessage(err)
	if !strings.Contains(msg, "inactivity_days is required") || !strings.Contains(msg, "discount_percent must be at most 100") {
		t.Fatalf("unexpected message %q", msg)
	}
}
