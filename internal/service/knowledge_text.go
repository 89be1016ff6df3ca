package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cloo-solutions/knowtext/internal/domain"
	"github.com/cloo-solutions/knowtext/internal/logger"
	"github.com/cloo-solutions/knowtext/internal/pagination"
	"github.com/cloo-solutions/knowtext/internal/telemetry"
)

const purgeBatchSize = 500

// KnowledgeTextService handles business logic for knowledge texts
type KnowledgeTextService struct {
	repo     KnowledgeTextRepositoryInterface
	txRunner TxRunner
	cache    TreeCache
	store    SnapshotStore
	uuidGen  UUIDGenerator
	log      *logger.Logger
	now      func() time.Time
}

// KnowledgeTextServiceOption configures optional collaborators.
type KnowledgeTextServiceOption func(*KnowledgeTextService)

func WithTreeCache(c TreeCache) KnowledgeTextServiceOption {
	return func(s *KnowledgeTextService) { s.cache = c }
}

func WithSnapshotStore(store SnapshotStore) KnowledgeTextServiceOption {
	return func(s *KnowledgeTextService) { s.store = store }
}

func WithUUIDGenerator(gen UUIDGenerator) KnowledgeTextServiceOption {
	return func(s *KnowledgeTextService) { s.uuidGen = gen }
}

func WithLogger(log *logger.Logger) KnowledgeTextServiceOption {
	return func(s *KnowledgeTextService) { s.log = log }
}

// WithClock overrides the time source. Timestamps are truncated to
// microseconds to match what Postgres stores.
func WithClock(now func() time.Time) KnowledgeTextServiceOption {
	return func(s *KnowledgeTextService) { s.now = now }
}

// NewKnowledgeTextService creates a new KnowledgeTextService instance
func NewKnowledgeTextService(
	repo KnowledgeTextRepositoryInterface,
	txRunner TxRunner,
	opts ...KnowledgeTextServiceOption,
) *KnowledgeTextService {
	s := &KnowledgeTextService{
		repo:     repo,
		txRunner: txRunner,
		uuidGen:  &DefaultUUIDGenerator{},
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KnowledgeTextService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// GetOptions controls how much of a record's subtree Get returns.
// Depth 0 returns the record alone, a negative depth the whole subtree.
type GetOptions struct {
	Depth          int
	IncludeDeleted bool
}

type ListInput struct {
	TenantID       string
	ParentID       string
	RootsOnly      bool
	Cursor         string
	Limit          int
	Summary        bool
	IncludeHidden  bool
	IncludeDeleted bool
}

type ListOutput struct {
	Items   []*domain.KnowledgeText
	Cursor  string
	HasMore bool
}

// TenantSnapshot is the document written by Export.
type TenantSnapshot struct {
	TenantID   string                  `json:"tenantId"`
	ExportedAt time.Time               `json:"exportedAt"`
	Count      int                     `json:"count"`
	Items      []*domain.KnowledgeText `json:"items"`
}

type ExportResult struct {
	Key         string    `json:"key"`
	DownloadURL string    `json:"downloadUrl"`
	Count       int       `json:"count"`
	ExportedAt  time.Time `json:"exportedAt"`
}

// Create validates an insert payload and persists it as a new record
func (s *KnowledgeTextService) Create(ctx context.Context, input domain.KnowledgeTextInsert) (*domain.KnowledgeText, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeTextService.Create", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		Operation: "create",
	})
	defer span.End()

	if err := domain.ValidateInsert(&input); err != nil {
		return nil, err
	}

	k := domain.NewKnowledgeText(s.uuidGen.NewString(), input, s.timestamp())
	if err := domain.ValidateKnowledgeText(k); err != nil {
		return nil, err
	}

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		repo := repos.KnowledgeTexts()
		if parentID, ok := input.ParentID.Get(); ok {
			// the parent cannot be deleted or moved until the insert commits
			if err := repo.LockHierarchy(ctx, input.TenantID); err != nil {
				return err
			}
			if _, err := s.loadParent(ctx, repo, input.TenantID, parentID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, k)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.invalidate(ctx, k.TenantID)
	s.log.Debug("knowledge text created", "id", k.ID, "tenant_id", k.TenantID)
	return k, nil
}

// Get returns a record, optionally with its children populated to opts.Depth
func (s *KnowledgeTextService) Get(ctx context.Context, id string, opts GetOptions) (*domain.KnowledgeText, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeTextService.Get", telemetry.SpanAttributes{
		KnowledgeTextID: id,
		Operation:       "get",
	})
	defer span.End()

	if id == "" {
		return nil, domain.ErrMissingID
	}

	k, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if k.IsDeleted() && !opts.IncludeDeleted {
		return nil, domain.ErrKnowledgeTextNotFound
	}
	if opts.Depth == 0 {
		return k, nil
	}

	rows, err := s.repo.ListSubtree(ctx, id, opts.IncludeDeleted)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	arena, err := domain.NewArena(rows...)
	if err != nil {
		return nil, err
	}
	if !arena.Has(id) {
		// the root row changed between the two reads
		if err := arena.Add(k); err != nil {
			return nil, err
		}
	}
	return arena.Tree(id, opts.Depth)
}

// List returns one page of a tenant's records ordered by creation time
func (s *KnowledgeTextService) List(ctx context.Context, input ListInput) (*ListOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeTextService.List", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		Operation: "list",
	})
	defer span.End()

	if input.TenantID == "" {
		return nil, domain.ErrMissingTenantID
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	filter := ListFilter{
		ParentID:       input.ParentID,
		RootsOnly:      input.RootsOnly,
		IncludeDeleted: input.IncludeDeleted,
		IncludeHidden:  input.IncludeHidden,
		Summary:        input.Summary,
	}
	result, err := s.repo.ListByTenantWithCursor(ctx, input.TenantID, filter, cursor, pagination.ClampLimit(input.Limit))
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	items := result.Items
	if items == nil {
		items = []*domain.KnowledgeText{}
	}
	return &ListOutput{
		Items:   items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

// Tree returns the live forest of a tenant, served from cache when possible
func (s *KnowledgeTextService) Tree(ctx context.Context, tenantID string) ([]*domain.KnowledgeText, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeTextService.Tree", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "tree",
	})
	defer span.End()

	if tenantID == "" {
		return nil, domain.ErrMissingTenantID
	}

	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		forest, g, ok, err := s.cache.GetForest(ctx, tenantID)
		switch {
		case err != nil:
			s.log.Warn("tree cache read failed", "tenant_id", tenantID, "error", err)
		case ok:
			return forest, nil
		default:
			gen, cacheable = g, true
		}
	}

	rows, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	arena, err := domain.NewArena(rows...)
	if err != nil {
		return nil, err
	}
	forest, err := arena.Forest(-1)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if cacheable {
		if err := s.cache.SetForest(ctx, tenantID, gen, forest); err != nil {
			s.log.Warn("tree cache write failed", "tenant_id", tenantID, "error", err)
		}
	}
	return forest, nil
}

// Update applies a partial update. An update that changes nothing returns
// the current record without writing.
func (s *KnowledgeTextService) Update(ctx context.Context, id string, update domain.KnowledgeTextUpdate) (*domain.KnowledgeText, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeTextService.Update", telemetry.SpanAttributes{
		KnowledgeTextID: id,
		Operation:       "update",
	})
	defer span.End()

	if id == "" {
		return nil, domain.ErrMissingID
	}
	if err := domain.ValidateUpdate(&update); err != nil {
		return nil, err
	}

	var (
		result  *domain.KnowledgeText
		changed bool
	)
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		repo := repos.KnowledgeTexts()

		k, err := s.lockRecord(ctx, repo, id, update.ParentID.IsSet())
		if err != nil {
			return err
		}
		if k.IsDeleted() {
			return domain.ErrKnowledgeTextDeleted
		}

		if parentID, ok := update.ParentID.Get(); ok && (k.ParentID == nil || *k.ParentID != parentID) {
			if err := s.checkReparent(ctx, repo, k, parentID); err != nil {
				return err
			}
		}

		if !k.Apply(update) {
			result = k
			return nil
		}
		k.UpdatedAt = s.timestamp()
		if err := domain.ValidateKnowledgeText(k); err != nil {
			return err
		}
		if err := repo.Update(ctx, k); err != nil {
			return err
		}
		result = k
		changed = true
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if changed {
		s.invalidate(ctx, result.TenantID)
	}
	return result, nil
}

// Delete soft-deletes a record and its live descendants. Deleting an already
// deleted record returns it unchanged.
func (s *KnowledgeTextService) Delete(ctx context.Context, id string) (*domain.KnowledgeText, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeTextService.Delete", telemetry.SpanAttributes{
		KnowledgeTextID: id,
		Operation:       "delete",
	})
	defer span.End()

	if id == "" {
		return nil, domain.ErrMissingID
	}

	var (
		result   *domain.KnowledgeText
		affected int64
	)
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		repo := repos.KnowledgeTexts()

		k, err := s.lockRecord(ctx, repo, id, true)
		if err != nil {
			return err
		}
		result = k
		if k.IsDeleted() {
			return nil
		}

		now := s.timestamp()
		affected, err = repo.SoftDeleteSubtree(ctx, id, now)
		if err != nil {
			return err
		}
		k.DeletedAt = &now
		k.UpdatedAt = now
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if affected > 0 {
		s.invalidate(ctx, result.TenantID)
		s.log.Info("knowledge text deleted", "id", id, "tenant_id", result.TenantID, "affected", affected)
	}
	return result, nil
}

// Restore undoes a soft delete for a record and the descendants removed with it
func (s *KnowledgeTextService) Restore(ctx context.Context, id string) (*domain.KnowledgeText, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeTextService.Restore", telemetry.SpanAttributes{
		KnowledgeTextID: id,
		Operation:       "restore",
	})
	defer span.End()

	if id == "" {
		return nil, domain.ErrMissingID
	}

	var (
		result   *domain.KnowledgeText
		affected int64
	)
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		repo := repos.KnowledgeTexts()

		k, err := s.lockRecord(ctx, repo, id, true)
		if err != nil {
			return err
		}
		if !k.IsDeleted() {
			return domain.ErrNotDeleted
		}
		if k.ParentID != nil {
			parent, err := repo.GetByID(ctx, *k.ParentID)
			if err != nil {
				if errors.Is(err, domain.ErrKnowledgeTextNotFound) {
					return domain.ErrParentNotFound
				}
				return err
			}
			if parent.IsDeleted() {
				return domain.ErrParentDeleted
			}
		}

		now := s.timestamp()
		affected, err = repo.RestoreSubtree(ctx, id, *k.DeletedAt, now)
		if err != nil {
			return err
		}
		k.DeletedAt = nil
		k.UpdatedAt = now
		result = k
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.invalidate(ctx, result.TenantID)
	s.log.Info("knowledge text restored", "id", id, "tenant_id", result.TenantID, "affected", affected)
	return result, nil
}

// Purge hard-deletes records soft-deleted more than retention ago and
// returns how many rows were removed.
func (s *KnowledgeTextService) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeTextService.Purge", telemetry.SpanAttributes{
		Operation: "purge",
	})
	defer span.End()

	if retention < 0 {
		return 0, domain.NewDomainError(domain.ErrCodeValidation, "retention cannot be negative")
	}

	cutoff := s.timestamp().Add(-retention)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.repo.PurgeDeletedBefore(ctx, cutoff, purgeBatchSize)
		if err != nil {
			span.SetError(err)
			return total, err
		}
		total += n
		if n == 0 {
			break
		}
	}

	if total > 0 {
		s.log.Debug("purge pass complete", "count", total, "cutoff", cutoff)
	}
	return total, nil
}

// Export writes the tenant forest to object storage and returns a download link
func (s *KnowledgeTextService) Export(ctx context.Context, tenantID string) (*ExportResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeTextService.Export", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "export",
	})
	defer span.End()

	if s.store == nil {
		return nil, domain.ErrStorageNotConfigured
	}

	forest, err := s.Tree(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	snapshot := TenantSnapshot{
		TenantID:   tenantID,
		ExportedAt: now,
		Count:      countNodes(forest),
		Items:      forest,
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("exports/%s/%s-%s.json", url.PathEscape(tenantID), now.Format("20060102T150405Z"), s.uuidGen.NewString())
	if err := s.store.PutObject(ctx, key, "application/json", body); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("upload snapshot %s: %w", key, errors.Join(domain.ErrStorageOperationFail, err))
	}

	downloadURL, err := s.store.GenerateDownloadURL(ctx, key)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("presign snapshot %s: %w", key, errors.Join(domain.ErrStorageOperationFail, err))
	}

	s.log.Info("tenant exported", "tenant_id", tenantID, "key", key, "count", snapshot.Count)
	return &ExportResult{
		Key:         key,
		DownloadURL: downloadURL,
		Count:       snapshot.Count,
		ExportedAt:  now,
	}, nil
}

// lockRecord loads id with a row lock for the rest of the transaction.
// Structural changes take the tenant hierarchy lock before the row lock, so
// no transaction waits for the hierarchy lock while holding a row.
func (s *KnowledgeTextService) lockRecord(ctx context.Context, repo KnowledgeTextRepositoryInterface, id string, structural bool) (*domain.KnowledgeText, error) {
	if structural {
		k, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := repo.LockHierarchy(ctx, k.TenantID); err != nil {
			return nil, err
		}
	}
	return repo.GetByIDForUpdate(ctx, id)
}

// loadParent fetches a prospective parent and checks it can take children
// from tenantID.
func (s *KnowledgeTextService) loadParent(ctx context.Context, repo KnowledgeTextRepositoryInterface, tenantID, parentID string) (*domain.KnowledgeText, error) {
	parent, err := repo.GetByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, domain.ErrKnowledgeTextNotFound) {
			return nil, domain.ErrParentNotFound
		}
		return nil, err
	}
	if parent.TenantID != tenantID {
		return nil, domain.ErrParentTenantMismatch
	}
	if parent.IsDeleted() {
		return nil, domain.ErrParentDeleted
	}
	return parent, nil
}

func (s *KnowledgeTextService) checkReparent(ctx context.Context, repo KnowledgeTextRepositoryInterface, k *domain.KnowledgeText, parentID string) error {
	if parentID == k.ID {
		return domain.ErrHierarchyCycle
	}
	if _, err := s.loadParent(ctx, repo, k.TenantID, parentID); err != nil {
		return err
	}

	subtree, err := repo.ListSubtree(ctx, k.ID, true)
	if err != nil {
		return err
	}
	arena, err := domain.NewArena(subtree...)
	if err != nil {
		return err
	}
	if arena.Has(parentID) {
		return domain.ErrHierarchyCycle
	}
	return nil
}

func (s *KnowledgeTextService) invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tenantID); err != nil {
		s.log.Warn("tree cache invalidation failed", "tenant_id", tenantID, "error", err)
		telemetry.AddBreadcrumb(ctx, "cache", "tree cache invalidation failed for tenant "+tenantID)
	}
}

func countNodes(forest []*domain.KnowledgeText) int {
	n := 0
	for _, k := range forest {
		n += 1 + countNodes(k.Children)
	}
	return n
}
