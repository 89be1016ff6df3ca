package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/knowtext/internal/domain"
	"github.com/cloo-solutions/knowtext/internal/pagination"
	"github.com/google/uuid"
)

// KnowledgeTextRepositoryInterface defines the repository interface for knowledge text persistence
type KnowledgeTextRepositoryInterface interface {
	Create(ctx context.Context, k *domain.KnowledgeText) error
	// GetByID returns soft-deleted records too; callers decide visibility.
	GetByID(ctx context.Context, id string) (*domain.KnowledgeText, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.KnowledgeText, error)
	// LockHierarchy serializes parent link changes, subtree deletes and
	// restores within a tenant for the rest of the transaction.
	LockHierarchy(ctx context.Context, tenantID string) error
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.KnowledgeText, error)
	ListByTenantWithCursor(ctx context.Context, tenantID string, filter ListFilter, cursor *pagination.Cursor, limit int) (*KnowledgeTextPageResult, error)
	ListSubtree(ctx context.Context, rootID string, includeDeleted bool) ([]*domain.KnowledgeText, error)
	Update(ctx context.Context, k *domain.KnowledgeText) error
	SoftDeleteSubtree(ctx context.Context, id string, at time.Time) (int64, error)
	RestoreSubtree(ctx context.Context, id string, deletedAt time.Time, at time.Time) (int64, error)
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// ListFilter narrows a tenant listing. ParentID wins over RootsOnly.
type ListFilter struct {
	ParentID       string
	RootsOnly      bool
	IncludeDeleted bool
	IncludeHidden  bool
	Summary        bool
}

type KnowledgeTextPageResult struct {
	Items      []*domain.KnowledgeText
	NextCursor string
	HasMore    bool
}

// TreeCache caches assembled tenant forests. GetForest returns the
// generation it looked under; a forest built after a miss is stored with
// that generation, and Invalidate retires it.
type TreeCache interface {
	GetForest(ctx context.Context, tenantID string) ([]*domain.KnowledgeText, int64, bool, error)
	SetForest(ctx context.Context, tenantID string, gen int64, forest []*domain.KnowledgeText) error
	Invalidate(ctx context.Context, tenantID string) error
}

// SnapshotStore persists export snapshots.
type SnapshotStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
