package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/knowtext/internal/api"
	"github.com/cloo-solutions/knowtext/internal/domain"
	"github.com/cloo-solutions/knowtext/internal/service"
	"github.com/go-chi/chi/v5"
)

type KnowledgeTextService interface {
	Create(ctx context.Context, input domain.KnowledgeTextInsert) (*domain.KnowledgeText, error)
	Get(ctx context.Context, id string, opts service.GetOptions) (*domain.KnowledgeText, error)
	List(ctx context.Context, input service.ListInput) (*service.ListOutput, error)
	Tree(ctx context.Context, tenantID string) ([]*domain.KnowledgeText, error)
	Update(ctx context.Context, id string, update domain.KnowledgeTextUpdate) (*domain.KnowledgeText, error)
	Delete(ctx context.Context, id string) (*domain.KnowledgeText, error)
	Restore(ctx context.Context, id string) (*domain.KnowledgeText, error)
	Export(ctx context.Context, tenantID string) (*service.ExportResult, error)
}

type KnowledgeTextHandler struct {
	svc KnowledgeTextService
}

func NewKnowledgeTextHandler(svc KnowledgeTextService) *KnowledgeTextHandler {
	return &KnowledgeTextHandler{svc: svc}
}

type KnowledgeTextListResponse struct {
	Items   []*domain.KnowledgeText `json:"items"`
	Cursor  string                  `json:"cursor,omitempty"`
	HasMore bool                    `json:"hasMore"`
}

type TreeResponse struct {
	TenantID string                  `json:"tenantId"`
	Items    []*domain.KnowledgeText `json:"items"`
}

func (h *KnowledgeTextHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.KnowledgeTextInsert
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	k, err := h.svc.Create(r.Context(), req)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusCreated, k)
}

func (h *KnowledgeTextHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	q := r.URL.Query()
	depth, err := parseDepth(q.Get("depth"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid depth")
		return
	}
	includeDeleted, err := parseBool(q.Get("includeDeleted"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid includeDeleted")
		return
	}

	k, err := h.svc.Get(r.Context(), id, service.GetOptions{Depth: depth, IncludeDeleted: includeDeleted})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, k)
}

func (h *KnowledgeTextHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	input := service.ListInput{
		TenantID: q.Get("tenantId"),
		ParentID: q.Get("parentId"),
		Cursor:   q.Get("cursor"),
	}
	if input.TenantID == "" {
		api.Error(w, http.StatusBadRequest, "tenantId is required")
		return
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		input.Limit = limit
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{"roots", &input.RootsOnly},
		{"summary", &input.Summary},
		{"includeHidden", &input.IncludeHidden},
		{"includeDeleted", &input.IncludeDeleted},
	}
	for _, f := range flags {
		v, err := parseBool(q.Get(f.name))
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid "+f.name)
			return
		}
		*f.dst = v
	}

	output, err := h.svc.List(r.Context(), input)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, KnowledgeTextListResponse{
		Items:   output.Items,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}

func (h *KnowledgeTextHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req domain.KnowledgeTextUpdate
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	k, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, k)
}

func (h *KnowledgeTextHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	k, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, k)
}

func (h *KnowledgeTextHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	k, err := h.svc.Restore(r.Context(), id)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, k)
}

func (h *KnowledgeTextHandler) Tree(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		api.Error(w, http.StatusBadRequest, "tenantId is required")
		return
	}

	forest, err := h.svc.Tree(r.Context(), tenantID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	if forest == nil {
		forest = []*domain.KnowledgeText{}
	}

	api.Success(w, http.StatusOK, TreeResponse{TenantID: tenantID, Items: forest})
}

func (h *KnowledgeTextHandler) Export(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if tenantID == "" {
		api.Error(w, http.StatusBadRequest, "tenantId is required")
		return
	}

	result, err := h.svc.Export(r.Context(), tenantID)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusCreated, result)
}

// parseDepth accepts a non-negative integer, or "all" / -1 for the full subtree.
func parseDepth(s string) (int, error) {
	switch s {
	case "":
		return 0, nil
	case "all", "-1":
		return -1, nil
	}
	depth, err := strconv.Atoi(s)
	if err != nil || depth < 0 {
		return 0, strconv.ErrSyntax
	}
	return depth, nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
