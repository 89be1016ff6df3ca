package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/knowtext/internal/domain"
	"github.com/cloo-solutions/knowtext/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockKnowledgeTextService struct {
	mock.Mock
}

func (m *MockKnowledgeTextService) Create(ctx context.Context, input domain.KnowledgeTextInsert) (*domain.KnowledgeText, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeText), args.Error(1)
}

func (m *MockKnowledgeTextService) Get(ctx context.Context, id string, opts service.GetOptions) (*domain.KnowledgeText, error) {
	args := m.Called(ctx, id, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeText), args.Error(1)
}

func (m *MockKnowledgeTextService) List(ctx context.Context, input service.ListInput) (*service.ListOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListOutput), args.Error(1)
}

func (m *MockKnowledgeTextService) Tree(ctx context.Context, tenantID string) ([]*domain.KnowledgeText, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeText), args.Error(1)
}

func (m *MockKnowledgeTextService) Update(ctx context.Context, id string, update domain.KnowledgeTextUpdate) (*domain.KnowledgeText, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeText), args.Error(1)
}

func (m *MockKnowledgeTextService) Delete(ctx context.Context, id string) (*domain.KnowledgeText, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeText), args.Error(1)
}

func (m *MockKnowledgeTextService) Restore(ctx context.Context, id string) (*domain.KnowledgeText, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeText), args.Error(1)
}

func (m *MockKnowledgeTextService) Export(ctx context.Context, tenantID string) (*service.ExportResult, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ExportResult), args.Error(1)
}

func newTestKnowledgeText() *domain.KnowledgeText {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	team := "team-1"
	return &domain.KnowledgeText{
		ID:        "kt-123",
		TenantID:  "tenant-1",
		TeamID:    &team,
		Title:     "Onboarding",
		Text:      domain.Some("Read this first"),
		Meta:      domain.Meta{"lang": domain.MetaString("en")},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return data
}

func TestKnowledgeTextHandler_Create_Success(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)

	mockSvc.On("Create", mock.Anything, mock.MatchedBy(func(in domain.KnowledgeTextInsert) bool {
		parent, _ := in.ParentID.Get()
		lang, _ := in.Meta.OrElse(nil).Get("lang")
		langStr, _ := lang.AsString()
		return in.TenantID == "tenant-1" && in.Title == "Onboarding" && parent == "root" &&
			in.TeamID.IsNull() && !in.UserID.IsSet() && langStr == "en"
	})).Return(newTestKnowledgeText(), nil)

	body := `{"tenantId":"tenant-1","title":"Onboarding","text":"Read this first","parentId":"root","teamId":null,"meta":{"lang":"en"}}`
	req := httptest.NewRequest(http.MethodPost, "/knowledge-texts", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "kt-123", data["id"])
	assert.Equal(t, "tenant-1", data["tenantId"])
	assert.Equal(t, "team-1", data["teamId"])
	assert.Nil(t, data["deletedAt"])
	assert.NotContains(t, data, "children")
	mockSvc.AssertExpectations(t)
}

func TestKnowledgeTextHandler_Create_InvalidJSON(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)

	req := httptest.NewRequest(http.MethodPost, "/knowledge-texts", strings.NewReader(`{invalid`))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
	mockSvc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestKnowledgeTextHandler_Create_ValidationError(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)
	mockSvc.On("Create", mock.Anything, mock.Anything).Return(nil, domain.ErrMissingTitle)

	req := httptest.NewRequest(http.MethodPost, "/knowledge-texts", strings.NewReader(`{"tenantId":"t","text":"x"}`))
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "title is required")
}

func TestKnowledgeTextHandler_Get(t *testing.T) {
	tests := []struct {
		name  string
		query string
		opts  service.GetOptions
	}{
		{"record only", "", service.GetOptions{}},
		{"depth", "?depth=2", service.GetOptions{Depth: 2}},
		{"all", "?depth=all&includeDeleted=true", service.GetOptions{Depth: -1, IncludeDeleted: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockKnowledgeTextService)
			handler := NewKnowledgeTextHandler(mockSvc)
			mockSvc.On("Get", mock.Anything, "kt-123", tt.opts).Return(newTestKnowledgeText(), nil)

			req := withURLParam(httptest.NewRequest(http.MethodGet, "/knowledge-texts/kt-123"+tt.query, nil), "id", "kt-123")
			w := httptest.NewRecorder()
			handler.Get(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestKnowledgeTextHandler_Get_BadQuery(t *testing.T) {
	handler := NewKnowledgeTextHandler(new(MockKnowledgeTextService))

	for _, q := range []string{"?depth=-5", "?depth=x", "?includeDeleted=maybe"} {
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/knowledge-texts/kt-123"+q, nil), "id", "kt-123")
		w := httptest.NewRecorder()
		handler.Get(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestKnowledgeTextHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)
	mockSvc.On("Get", mock.Anything, "missing", service.GetOptions{}).Return(nil, domain.ErrKnowledgeTextNotFound)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/knowledge-texts/missing", nil), "id", "missing")
	w := httptest.NewRecorder()
	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKnowledgeTextHandler_List(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)

	summary := newTestKnowledgeText().Summary()
	mockSvc.On("List", mock.Anything, service.ListInput{
		TenantID:      "tenant-1",
		RootsOnly:     true,
		Cursor:        "abc",
		Limit:         5,
		Summary:       true,
		IncludeHidden: true,
	}).Return(&service.ListOutput{
		Items:   []*domain.KnowledgeText{summary},
		Cursor:  "next",
		HasMore: true,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/knowledge-texts?tenantId=tenant-1&roots=true&cursor=abc&limit=5&summary=1&includeHidden=true", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "next", data["cursor"])
	assert.Equal(t, true, data["hasMore"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.NotContains(t, items[0].(map[string]interface{}), "text")
	mockSvc.AssertExpectations(t)
}

func TestKnowledgeTextHandler_List_BadRequest(t *testing.T) {
	handler := NewKnowledgeTextHandler(new(MockKnowledgeTextService))

	for _, q := range []string{"", "?tenantId=t&limit=abc", "?tenantId=t&limit=-1", "?tenantId=t&roots=perhaps"} {
		w := httptest.NewRecorder()
		handler.List(w, httptest.NewRequest(http.MethodGet, "/knowledge-texts"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestKnowledgeTextHandler_Update(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)

	mockSvc.On("Update", mock.Anything, "kt-123", mock.MatchedBy(func(u domain.KnowledgeTextUpdate) bool {
		title, _ := u.Title.Get()
		return title == "Renamed" && u.ParentID.IsNull() && !u.Text.IsSet() && !u.Hidden.IsSet()
	})).Return(newTestKnowledgeText(), nil)

	req := httptest.NewRequest(http.MethodPatch, "/knowledge-texts/kt-123", strings.NewReader(`{"title":"Renamed","parentId":null}`))
	req = withURLParam(req, "id", "kt-123")
	w := httptest.NewRecorder()
	handler.Update(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestKnowledgeTextHandler_Update_Cycle(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)
	mockSvc.On("Update", mock.Anything, "kt-123", mock.Anything).Return(nil, domain.ErrHierarchyCycle)

	req := httptest.NewRequest(http.MethodPatch, "/knowledge-texts/kt-123", strings.NewReader(`{"parentId":"child"}`))
	req = withURLParam(req, "id", "kt-123")
	w := httptest.NewRecorder()
	handler.Update(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestKnowledgeTextHandler_DeleteAndRestore(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)

	deleted := newTestKnowledgeText()
	at := deleted.CreatedAt.Add(time.Hour)
	deleted.DeletedAt = &at
	mockSvc.On("Delete", mock.Anything, "kt-123").Return(deleted, nil)
	mockSvc.On("Restore", mock.Anything, "kt-123").Return(nil, domain.ErrParentDeleted)

	w := httptest.NewRecorder()
	handler.Delete(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/knowledge-texts/kt-123", nil), "id", "kt-123"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decodeData(t, w)["deletedAt"])

	w = httptest.NewRecorder()
	handler.Restore(w, withURLParam(httptest.NewRequest(http.MethodPost, "/knowledge-texts/kt-123/restore", nil), "id", "kt-123"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestKnowledgeTextHandler_Tree(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)

	root := newTestKnowledgeText()
	child := newTestKnowledgeText()
	child.ID = "kt-child"
	child.ParentID = &root.ID
	child.Children = []*domain.KnowledgeText{}
	root.Children = []*domain.KnowledgeText{child}
	mockSvc.On("Tree", mock.Anything, "tenant-1").Return([]*domain.KnowledgeText{root}, nil)

	w := httptest.NewRecorder()
	handler.Tree(w, withURLParam(httptest.NewRequest(http.MethodGet, "/tenants/tenant-1/tree", nil), "tenantId", "tenant-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	children := items[0].(map[string]interface{})["children"].([]interface{})
	require.Len(t, children, 1)
	leaf := children[0].(map[string]interface{})
	assert.Equal(t, "kt-123", leaf["parentId"])
	assert.Equal(t, []interface{}{}, leaf["children"])
}

func TestKnowledgeTextHandler_Export(t *testing.T) {
	mockSvc := new(MockKnowledgeTextService)
	handler := NewKnowledgeTextHandler(mockSvc)
	mockSvc.On("Export", mock.Anything, "tenant-1").Return(&service.ExportResult{
		Key:         "exports/tenant-1/x.json",
		DownloadURL: "https://example.test/x",
		Count:       4,
	}, nil)
	mockSvc.On("Export", mock.Anything, "tenant-2").Return(nil, domain.ErrStorageNotConfigured)

	w := httptest.NewRecorder()
	handler.Export(w, withURLParam(httptest.NewRequest(http.MethodPost, "/tenants/tenant-1/exports", nil), "tenantId", "tenant-1"))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "https://example.test/x", decodeData(t, w)["downloadUrl"])

	w = httptest.NewRecorder()
	handler.Export(w, withURLParam(httptest.NewRequest(http.MethodPost, "/tenants/tenant-2/exports", nil), "tenantId", "tenant-2"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
