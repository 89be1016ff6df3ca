package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/knowtext/internal/domain"
	"github.com/cloo-solutions/knowtext/internal/pagination"
	"github.com/cloo-solutions/knowtext/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const knowledgeTextColumns = `id, tenant_id, tenant_wide, team_id, user_id, parent_id, text, title, meta, hidden, created_at, updated_at, deleted_at`

// summary listings skip the body
const knowledgeTextSummaryColumns = `id, tenant_id, tenant_wide, team_id, user_id, parent_id, NULL::text AS text, title, meta, hidden, created_at, updated_at, deleted_at`

type KnowledgeTextRepository struct {
	db dbtx
}

func NewKnowledgeTextRepository(pool *pgxpool.Pool) *KnowledgeTextRepository {
	return &KnowledgeTextRepository{db: pool}
}

func NewKnowledgeTextRepositoryWithTx(tx pgx.Tx) *KnowledgeTextRepository {
	return &KnowledgeTextRepository{db: tx}
}

func (r *KnowledgeTextRepository) Create(ctx context.Context, k *domain.KnowledgeText) error {
	meta, err := json.Marshal(k.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	text, _ := k.Text.Get()
	_, err = r.db.Exec(ctx,
		`INSERT INTO knowledge_texts (`+knowledgeTextColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		k.ID, k.TenantID, k.TenantWide, k.TeamID, k.UserID, k.ParentID, text, k.Title, meta, k.Hidden, k.CreatedAt, k.UpdatedAt, k.DeletedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *KnowledgeTextRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeText, error) {
	k, err := scanKnowledgeText(r.db.QueryRow(ctx,
		`SELECT `+knowledgeTextColumns+` FROM knowledge_texts WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeTextNotFound
		}
		return nil, err
	}
	return k, nil
}

// ListByTenant returns every live record of a tenant in creation order
// GetByIDForUpdate is GetByID with a row lock held until the surrounding
// transaction ends.
func (r *KnowledgeTextRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.KnowledgeText, error) {
	k, err := scanKnowledgeText(r.db.QueryRow(ctx,
		`SELECT `+knowledgeTextColumns+` FROM knowledge_texts WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeTextNotFound
		}
		return nil, err
	}
	return k, nil
}

// LockHierarchy takes a transaction-scoped advisory lock on the tenant's
// parent links. Outside a transaction it is released immediately.
func (r *KnowledgeTextRepository) LockHierarchy(ctx context.Context, tenantID string) error {
	if _, err := r.db.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"knowledge_texts:"+tenantID,
	); err != nil {
		return fmt.Errorf("lock hierarchy for tenant %s: %w", tenantID, err)
	}
	return nil
}

func (r *KnowledgeTextRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.KnowledgeText, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+knowledgeTextColumns+`
		 FROM knowledge_texts
		 WHERE tenant_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at ASC, id ASC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeTextRows(rows)
}

func (r *KnowledgeTextRepository) ListByTenantWithCursor(ctx context.Context, tenantID string, filter service.ListFilter, cursor *pagination.Cursor, limit int) (*service.KnowledgeTextPageResult, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	args := []any{tenantID}
	where := []string{"tenant_id = $1"}
	switch {
	case filter.ParentID != "":
		args = append(args, filter.ParentID)
		where = append(where, fmt.Sprintf("parent_id = $%d", len(args)))
	case filter.RootsOnly:
		where = append(where, "parent_id IS NULL")
	}
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if !filter.IncludeHidden {
		where = append(where, "hidden = FALSE")
	}
	if cursor != nil {
		args = append(args, cursor.Timestamp, cursor.LastID)
		where = append(where, fmt.Sprintf("(created_at, id) > ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, limit+1)

	columns := knowledgeTextColumns
	if filter.Summary {
		columns = knowledgeTextSummaryColumns
	}
	query := fmt.Sprintf(
		`SELECT %s FROM knowledge_texts WHERE %s ORDER BY created_at ASC, id ASC LIMIT $%d`,
		columns, strings.Join(where, " AND "), len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanKnowledgeTextRows(rows)
	if err != nil {
		return nil, err
	}

	page := pagination.Page(items, limit,
		func(k *domain.KnowledgeText) string { return k.ID },
		func(k *domain.KnowledgeText) time.Time { return k.CreatedAt },
	)
	return &service.KnowledgeTextPageResult{
		Items:      page.Items,
		NextCursor: page.Cursor,
		HasMore:    page.HasMore,
	}, nil
}

// ListSubtree returns rootID and all of its descendants. Without
// includeDeleted the walk stops at deleted records.
func (r *KnowledgeTextRepository) ListSubtree(ctx context.Context, rootID string, includeDeleted bool) ([]*domain.KnowledgeText, error) {
	rows, err := r.db.Query(ctx,
		`WITH RECURSIVE subtree AS (
			SELECT kt.id, ARRAY[kt.id] AS path
			FROM knowledge_texts kt
			WHERE kt.id = $1 AND ($2 OR kt.deleted_at IS NULL)
			UNION ALL
			SELECT c.id, s.path || c.id
			FROM knowledge_texts c
			JOIN subtree s ON c.parent_id = s.id
			WHERE ($2 OR c.deleted_at IS NULL) AND NOT c.id = ANY(s.path)
		)
		SELECT `+knowledgeTextColumns+`
		FROM knowledge_texts
		WHERE id IN (SELECT id FROM subtree)
		ORDER BY created_at ASC, id ASC`,
		rootID, includeDeleted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeTextRows(rows)
}

func (r *KnowledgeTextRepository) Update(ctx context.Context, k *domain.KnowledgeText) error {
	meta, err := json.Marshal(k.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	text, _ := k.Text.Get()
	result, err := r.db.Exec(ctx,
		`UPDATE knowledge_texts
		 SET tenant_wide = $2, team_id = $3, user_id = $4, parent_id = $5, text = $6, title = $7,
		     meta = $8, hidden = $9, updated_at = $10
		 WHERE id = $1 AND deleted_at IS NULL`,
		k.ID, k.TenantWide, k.TeamID, k.UserID, k.ParentID, text, k.Title, meta, k.Hidden, k.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrKnowledgeTextNotFound
	}
	return nil
}

// SoftDeleteSubtree stamps id and its live descendants with at.
func (r *KnowledgeTextRepository) SoftDeleteSubtree(ctx context.Context, id string, at time.Time) (int64, error) {
	result, err := r.db.Exec(ctx,
		`WITH RECURSIVE subtree AS (
			SELECT id FROM knowledge_texts WHERE id = $1 AND deleted_at IS NULL
			UNION
			SELECT c.id FROM knowledge_texts c
			JOIN subtree s ON c.parent_id = s.id
			WHERE c.deleted_at IS NULL
		)
		UPDATE knowledge_texts SET deleted_at = $2, updated_at = $2
		WHERE id IN (SELECT id FROM subtree)`,
		id, at,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// RestoreSubtree clears deleted_at on id and on the descendants that were
// deleted together with it.
func (r *KnowledgeTextRepository) RestoreSubtree(ctx context.Context, id string, deletedAt time.Time, at time.Time) (int64, error) {
	result, err := r.db.Exec(ctx,
		`WITH RECURSIVE subtree AS (
			SELECT id FROM knowledge_texts WHERE id = $1 AND deleted_at = $2
			UNION
			SELECT c.id FROM knowledge_texts c
			JOIN subtree s ON c.parent_id = s.id
			WHERE c.deleted_at = $2
		)
		UPDATE knowledge_texts SET deleted_at = NULL, updated_at = $3
		WHERE id IN (SELECT id FROM subtree)`,
		id, deletedAt, at,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// PurgeDeletedBefore hard-deletes up to limit records soft-deleted before
// cutoff. Only leaves are removed per pass, so callers loop until it returns 0.
func (r *KnowledgeTextRepository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_texts
		 WHERE id IN (
			SELECT k.id FROM knowledge_texts k
			WHERE k.deleted_at IS NOT NULL AND k.deleted_at < $1
			  AND NOT EXISTS (SELECT 1 FROM knowledge_texts c WHERE c.parent_id = k.id)
			ORDER BY k.deleted_at ASC
			LIMIT $2
		 )`,
		cutoff, limit,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func scanKnowledgeText(row pgx.Row) (*domain.KnowledgeText, error) {
	var (
		k    domain.KnowledgeText
		text *string
		meta []byte
	)
	err := row.Scan(&k.ID, &k.TenantID, &k.TenantWide, &k.TeamID, &k.UserID, &k.ParentID,
		&text, &k.Title, &meta, &k.Hidden, &k.CreatedAt, &k.UpdatedAt, &k.DeletedAt)
	if err != nil {
		return nil, err
	}
	if text != nil {
		k.Text = domain.Some(*text)
	}
	if err := json.Unmarshal(meta, &k.Meta); err != nil {
		return nil, fmt.Errorf("decode meta for %s: %w", k.ID, err)
	}
	if k.Meta == nil {
		k.Meta = domain.Meta{}
	}
	k.CreatedAt = k.CreatedAt.UTC()
	k.UpdatedAt = k.UpdatedAt.UTC()
	if k.DeletedAt != nil {
		deletedAt := k.DeletedAt.UTC()
		k.DeletedAt = &deletedAt
	}
	return &k, nil
}

func scanKnowledgeTextRows(rows pgx.Rows) ([]*domain.KnowledgeText, error) {
	var items []*domain.KnowledgeText
	for rows.Next() {
		k, err := scanKnowledgeText(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
