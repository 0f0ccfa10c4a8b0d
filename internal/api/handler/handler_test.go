package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"polylab/backend/internal/dto"
	"polylab/backend/internal/service"
	pkgerrors "polylab/backend/pkg/errors"
	"polylab/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock RequestService ──

type mockRequestService struct {
	submitResult *dto.SubmitResponse
	submitErr    error
	getResult    *dto.RequestResponse
	getErr       error
	listResult   []dto.RequestResponse
	listTotal    int64
	listErr      error

	gotCallerID string
	gotKey      string
	gotList     *dto.RequestListRequest
}

func (m *mockRequestService) Submit(_ context.Context, _ *dto.SubmitRequest, callerID, key string) (*dto.SubmitResponse, error) {
	m.gotCallerID = callerID
	m.gotKey = key
	return m.submitResult, m.submitErr
}
func (m *mockRequestService) GetByNumber(_ context.Context, _ string) (*dto.RequestResponse, error) {
	return m.getResult, m.getErr
}
func (m *mockRequestService) List(_ context.Context, req *dto.RequestListRequest) ([]dto.RequestResponse, int64, error) {
	m.gotList = req
	return m.listResult, m.listTotal, m.listErr
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

// newRequestRouter 模拟 JWT 中间件注入 user_id
func newRequestRouter(h *RequestHandler, authed bool) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if authed {
			c.Set("user_id", "test-user-id")
			c.Set("role", "requester")
		}
		c.Next()
	})
	r.POST("/requests", h.Submit)
	r.GET("/requests", h.List)
	r.GET("/requests/:number", h.GetByNumber)
	return r
}

func validSubmission() dto.SubmitRequest {
	return dto.SubmitRequest{
		Priority:  "normal",
		Requester: dto.Person{Name: "Somchai", Email: "somchai@example.com"},
		Samples:   []dto.SampleInput{{Name: "S1"}, {Name: "S2"}},
		TestMethods: []dto.TestMethodInput{{
			ID:      "0b7c6a7e-2d47-4b59-9a44-3f1f3b8f7a10",
			Samples: []string{"S1", "S2"},
			Cost:    120,
		}},
	}
}

func postSubmission(r *gin.Engine, body io.Reader, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests", body)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	r.ServeHTTP(w, req)
	return w
}

// ═══════════════════════════════════════════════════════════
// RequestHandler Tests
// ═══════════════════════════════════════════════════════════

func TestRequestHandler_Submit_Success(t *testing.T) {
	mock := &mockRequestService{
		submitResult: &dto.SubmitResponse{
			RequestNumbers:    map[string]string{"cap-ms": "MS-N-0425-00001"},
			RequestIDs:        []string{"req-1"},
			SplitByCapability: false,
		},
	}
	r := newRequestRouter(NewRequestHandler(mock, zap.NewNop()), true)

	w := postSubmission(r, jsonBody(validSubmission()), "retry-abc")

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if mock.gotCallerID != "test-user-id" {
		t.Errorf("expected caller test-user-id, got %s", mock.gotCallerID)
	}
	if mock.gotKey != "retry-abc" {
		t.Errorf("expected idempotency key retry-abc, got %s", mock.gotKey)
	}

	var body struct {
		Code int                `json:"code"`
		Data dto.SubmitResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if body.Data.RequestNumbers["cap-ms"] != "MS-N-0425-00001" {
		t.Errorf("unexpected request numbers: %v", body.Data.RequestNumbers)
	}
}

func TestRequestHandler_Submit_BadJSON(t *testing.T) {
	r := newRequestRouter(NewRequestHandler(&mockRequestService{}, zap.NewNop()), true)

	w := postSubmission(r, bytes.NewReader([]byte("invalid json")), "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 10001 {
		t.Errorf("expected code 10001, got %d", resp.Code)
	}
}

func TestRequestHandler_Submit_BindingValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*dto.SubmitRequest)
		field  string
	}{
		{"invalid priority", func(r *dto.SubmitRequest) { r.Priority = "asap" }, "Priority"},
		{"bad email", func(r *dto.SubmitRequest) { r.Requester.Email = "not-an-email" }, "Requester.Email"},
		{"no samples", func(r *dto.SubmitRequest) { r.Samples = nil }, "Samples"},
		{"empty method id", func(r *dto.SubmitRequest) { r.TestMethods[0].ID = "" }, "TestMethods[0].ID"},
		{"negative cost", func(r *dto.SubmitRequest) { r.TestMethods[0].Cost = -1 }, "TestMethods[0].Cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockRequestService{}
			r := newRequestRouter(NewRequestHandler(mock, zap.NewNop()), true)
			req := validSubmission()
			tt.mutate(&req)

			w := postSubmission(r, jsonBody(req), "")

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			resp := parseResponse(w)
			if resp.Code != 14003 || resp.Kind != "ValidationFailure" {
				t.Errorf("expected 14003/ValidationFailure, got %d/%s", resp.Code, resp.Kind)
			}
			if !bytes.Contains([]byte(resp.Details), []byte(tt.field)) {
				t.Errorf("expected details to mention %s, got %q", tt.field, resp.Details)
			}
			if mock.gotCallerID != "" {
				t.Error("service should not be called on binding failure")
			}
		})
	}
}

func TestRequestHandler_Submit_LegacyMethodIDPassesBinding(t *testing.T) {
	mock := &mockRequestService{
		submitResult: &dto.SubmitResponse{RequestNumbers: map[string]string{}, RequestIDs: []string{}},
	}
	r := newRequestRouter(NewRequestHandler(mock, zap.NewNop()), true)
	req := validSubmission()
	req.TestMethods = append(req.TestMethods, dto.TestMethodInput{ID: "legacy-method-42", Samples: []string{"S1"}})

	w := postSubmission(r, jsonBody(req), "")

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if mock.gotCallerID != "test-user-id" {
		t.Error("service should receive the submission")
	}
}

func TestRequestHandler_Submit_Unauthenticated(t *testing.T) {
	r := newRequestRouter(NewRequestHandler(&mockRequestService{}, zap.NewNop()), false)

	w := postSubmission(r, jsonBody(validSubmission()), "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequestHandler_Submit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
		wantKind   string
	}{
		{"no capability", service.ErrNoCapabilityResolved, http.StatusUnprocessableEntity, 14001, "NoCapabilityResolved"},
		{"capability gone", pkgerrors.Wrap(pkgerrors.KindCapabilityNotFound, "能力组不存在", errors.New("record not found")), http.StatusConflict, 14002, "CapabilityNotFound"},
		{"validation", pkgerrors.Validation(pkgerrors.FieldError{Field: "ioNumber", Message: "不存在"}), http.StatusBadRequest, 14003, "ValidationFailure"},
		{"duplicate", service.ErrDuplicateRequestNumber, http.StatusConflict, 14004, "DuplicateRequestNumber"},
		{"transient", pkgerrors.Wrap(pkgerrors.KindTransientStoreFailure, "存储暂时不可用", errors.New("dial tcp: timeout")), http.StatusServiceUnavailable, 14005, "TransientStoreFailure"},
		{"in progress", service.ErrSubmissionInProgress, http.StatusConflict, 14006, "SubmissionInProgress"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, 50000, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockRequestService{submitErr: tt.err}
			r := newRequestRouter(NewRequestHandler(mock, zap.NewNop()), true)

			w := postSubmission(r, jsonBody(validSubmission()), "")

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			resp := parseResponse(w)
			if resp.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, resp.Code)
			}
			if resp.Kind != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, resp.Kind)
			}
			if resp.Data != nil {
				t.Error("failure response must not carry identifiers")
			}
			// 不暴露底层驱动错误
			if bytes.Contains(w.Body.Bytes(), []byte("dial tcp")) {
				t.Error("raw store error leaked to client")
			}
		})
	}
}

func TestRequestHandler_Submit_IdempotencyKeyTooLong(t *testing.T) {
	r := newRequestRouter(NewRequestHandler(&mockRequestService{}, zap.NewNop()), true)

	w := postSubmission(r, jsonBody(validSubmission()), string(bytes.Repeat([]byte("k"), 129)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRequestHandler_GetByNumber(t *testing.T) {
	mock := &mockRequestService{
		getResult: &dto.RequestResponse{ID: "req-1", RequestNumber: "MS-N-0425-00001"},
	}
	r := newRequestRouter(NewRequestHandler(mock, zap.NewNop()), true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests/MS-N-0425-00001", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	mock.getErr = service.ErrRequestNotFound
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests/MS-N-0425-99999", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 14007 {
		t.Errorf("expected code 14007, got %d", resp.Code)
	}
}

func TestRequestHandler_List(t *testing.T) {
	mock := &mockRequestService{
		listResult: []dto.RequestResponse{{ID: "req-1"}, {ID: "req-2"}},
		listTotal:  5,
	}
	r := newRequestRouter(NewRequestHandler(mock, zap.NewNop()), true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests?status=Pending+Receive+Sample&page=2&page_size=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.gotList == nil || mock.gotList.Status != "Pending Receive Sample" || mock.gotList.GetOffset() != 2 {
		t.Errorf("query not bound correctly: %+v", mock.gotList)
	}

	var body struct {
		Data response.PageData `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Pagination.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", body.Data.Pagination.TotalPages)
	}
}

func TestRequestHandler_List_InvalidQuery(t *testing.T) {
	r := newRequestRouter(NewRequestHandler(&mockRequestService{}, zap.NewNop()), true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests?page_size=1000", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
