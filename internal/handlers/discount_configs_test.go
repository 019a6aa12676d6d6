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
	"cart-discounts/internal/scheduler"
)

type stubConfigService struct {
	active  *models.DiscountConfiguration
	byID    *models.DiscountConfiguration
	saved   *models.DiscountConfiguration
	list    []*models.DiscountConfiguration
	err     error
	lastReq *models.DiscountConfigurationRequest
}

func (s *stubConfigService) GetActive(ctx context.Context) (*models.DiscountConfiguration, error) {
	if s.active == nil {
		return nil, apperror.NotFound("no active discount configuration", nil)
	}
	return s.active, nil
}
func (s *stubConfigService) GetConfiguration(ctx context.Context, id int64) (*models.DiscountConfiguration, error) {
	if s.byID == nil {
		return nil, apperror.NotFound("discount configuration not found", nil)
	}
	return s.byID, nil
}
func (s *stubConfigService) ListConfigurations(ctx context.Context) ([]*models.DiscountConfiguration, error) {
	return s.list, s.err
}
func (s *stubConfigService) CreateConfiguration(ctx context.Context, req *models.DiscountConfigurationRequest) (*models.DiscountConfiguration, error) {
	s.lastReq = req
	return s.saved, s.err
}
func (s *stubConfigService) UpdateConfiguration(ctx context.Context, id int64, req *models.DiscountConfigurationRequest) (*models.DiscountConfiguration, error) {
	s.lastReq = req
	return s.saved, s.err
}
func (s *stubConfigService) SetActive(ctx context.Context, id int64) (*models.DiscountConfiguration, error) {
	return s.saved, s.err
}
func (s *stubConfigService) DeleteConfiguration(ctx context.Context, id int64) error {
	return s.err
}

type stubScheduler struct {
	running  bool
	startOK  bool
	restarts int
	stops    int
}

func (s *stubScheduler) Start(ctx context.Context) bool {
	s.running = s.startOK
	return s.startOK
}
func (s *stubScheduler) Stop() bool {
	s.stops++
	was := s.running
	s.running = false
	return was
}
func (s *stubScheduler) Restart(ctx context.Context) bool {
	s.restarts++
	s.running = s.startOK
	return s.startOK
}
func (s *stubScheduler) Status() scheduler.Status {
	return scheduler.Status{Running: s.running, Spec: scheduler.DailySpec}
}

func TestDiscountConfigHandler_CreateActiveRestartsScheduler(t *testing.T) {
	configs := &stubConfigService{saved: &models.DiscountConfiguration{ID: 1, InactivityDays: 3, DiscountPercent: 10, Active: true}}
	sched := &stubScheduler{startOK: true}
	h := NewDiscountConfigHandler(configs, sched, newTestLogger())

	body := bytes.NewBufferString(`{"inactivity_days":3,"discount_percent":10,"active":true}`)
	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/admin/discount-configurations", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if sched.restarts != 1 {
		t.Fatalf("expected scheduler restart, got %d", sched.restarts)
	}
	var resp configResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.SchedulerRunning || resp.Configuration.ID != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestDiscountConfigHandler_CreateInactiveKeepsScheduler(t *testing.T) {
	configs := &stubConfigService{saved: &models.DiscountConfiguration{ID: 2, InactivityDays: 5, DiscountPercent: 5}}
	sched := &stubScheduler{startOK: true}
	h := NewDiscountConfigHandler(configs, sched, newTestLogger())

	body := bytes.NewBufferString(`{"inactivity_days":5,"discount_percent":5,"active":false}`)
	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/admin/discount-configurations", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if sched.restarts != 0 {
		t.Fatalf("inactive configuration must not restart scheduler")
	}
}

func TestDiscountConfigHandler_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero days", `{"inactivity_days":0,"discount_percent":10}`},
		{"percent too high", `{"inactivity_days":3,"discount_percent":101}`},
		{"negative percent", `{"inactivity_days":3,"discount_percent":-1}`},
		{"bad json", `{`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configs := &stubConfigService{}
			h := NewDiscountConfigHandler(configs, &stubScheduler{}, newTestLogger())

			rr := httptest.NewRecorder()
			h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/admin/discount-configurations", bytes.NewBufferString(tt.body)))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if configs.lastReq != nil {
				t.Fatalf("service must not be called on invalid payload")
			}
		})
	}
}

func TestDiscountConfigHandler_UpdateRestartsOnlyOnScheduleChange(t *testing.T) {
	before := &models.DiscountConfiguration{ID: 1, InactivityDays: 3, DiscountPercent: 10, Active: true}

	configs := &stubConfigService{byID: before, saved: &models.DiscountConfiguration{ID: 1, InactivityDays: 3, DiscountPercent: 20, Active: true}}
	sched := &stubScheduler{running: true, startOK: true}
	h := NewDiscountConfigHandler(configs, sched, newTestLogger())

	req := withURLParams(httptest.NewRequest(http.MethodPut, "/api/admin/discount-configurations/1",
		bytes.NewBufferString(`{"inactivity_days":3,"discount_percent":20,"active":true}`)), "id", "1")
	rr := httptest.NewRecorder()
	h.Update(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if sched.restarts != 0 {
		t.Fatalf("percent change must not restart scheduler")
	}

	configs.saved = &models.DiscountConfiguration{ID: 1, InactivityDays: 7, DiscountPercent: 20, Active: true}
	req = withURLParams(httptest.NewRequest(http.MethodPut, "/api/admin/discount-configurations/1",
		bytes.NewBufferString(`{"inactivity_days":7,"discount_percent":20,"active":true}`)), "id", "1")
	rr = httptest.NewRecorder()
	h.Update(rr, req)
	if rr.Code != http.StatusOK || sched.restarts != 1 {
		t.Fatalf("expected restart on inactivity change, code=%d restarts=%d", rr.Code, sched.restarts)
	}
}

func TestDiscountConfigHandler_UpdateNotFound(t *testing.T) {
	h := NewDiscountConfigHandler(&stubConfigService{}, &stubScheduler{}, newTestLogger())

	req := withURLParams(httptest.NewRequest(http.MethodPut, "/api/admin/discount-configurations/9",
		bytes.NewBufferString(`{"inactivity_days":3,"discount_percent":20}`)), "id", "9")
	rr := httptest.NewRecorder()
	h.Update(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDiscountConfigHandler_Activate(t *testing.T) {
	configs := &stubConfigService{saved: &models.DiscountConfiguration{ID: 4, InactivityDays: 2, Active: true}}
	sched := &stubScheduler{startOK: true}
	h := NewDiscountConfigHandler(configs, sched, newTestLogger())

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/api/admin/discount-configurations/4/activate", nil), "id", "4")
	rr := httptest.NewRecorder()
	h.Activate(rr, req)
	if rr.Code != http.StatusOK || sched.restarts != 1 {
		t.Fatalf("expected 200 and restart, got %d restarts=%d", rr.Code, sched.restarts)
	}
}

func TestDiscountConfigHandler_DeleteActiveConflict(t *testing.T) {
	configs := &stubConfigService{err: apperror.Conflict("cannot delete the active configuration", nil)}
	h := NewDiscountConfigHandler(configs, &stubScheduler{}, newTestLogger())

	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/api/admin/discount-configurations/1", nil), "id", "1")
	rr := httptest.NewRecorder()
	h.Delete(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestDiscountConfigHandler_GetActiveMissing(t *testing.T) {
	h := NewDiscountConfigHandler(&stubConfigService{}, &stubScheduler{}, newTestLogger())

	rr := httptest.NewRecorder()
	h.GetActive(rr, httptest.NewRequest(http.MethodGet, "/api/admin/discount-configurations/active", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDiscountConfigHandler_GetInvalidID(t *testing.T) {
	h := NewDiscountConfigHandler(&stubConfigService{}, &stubScheduler{}, newTestLogger())

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/admin/discount-configurations/x", nil), "id", "x")
	rr := httptest.NewRecorder()
	h.Get(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
