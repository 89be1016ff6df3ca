package domain

import (
	"time"
)

// KnowledgeText is a hierarchical, tenant-scoped note.
//
// Visibility is described by TenantWide, TeamID and UserID; the three are
// stored as given and no precedence between them is implied here.
type KnowledgeText struct {
	ID         string           `json:"id"`
	TenantID   string           `json:"tenantId"`
	TenantWide bool             `json:"tenantWide"`
	TeamID     *string          `json:"teamId"`
	UserID     *string          `json:"userId"`
	ParentID   *string          `json:"parentId"`
	Text       Optional[string] `json:"text,omitzero"`
	Title      string           `json:"title"`
	Meta       Meta             `json:"meta"`
	Hidden     bool             `json:"hidden"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	DeletedAt  *time.Time       `json:"deletedAt"`

	// Children is nil when not populated and non-nil (possibly empty) once expanded.
	Children []*KnowledgeText `json:"children,omitzero"`
}

// KnowledgeTextInsert is the creation payload. Identifiers and lifecycle
// timestamps are assigned by the system.
type KnowledgeTextInsert struct {
	TenantID   string           `json:"tenantId"`
	Text       string           `json:"text"`
	Title      string           `json:"title"`
	ParentID   Nullable[string] `json:"parentId,omitzero"`
	TeamID     Nullable[string] `json:"teamId,omitzero"`
	UserID     Nullable[string] `json:"userId,omitzero"`
	TenantWide Optional[bool]   `json:"tenantWide,omitzero"`
	Meta       Optional[Meta]   `json:"meta,omitzero"`
	Hidden     Optional[bool]   `json:"hidden,omitzero"`
}

// KnowledgeTextUpdate is a partial mutation. Absent fields are left alone;
// a null ParentID, TeamID or UserID clears it. The target record is
// identified out of band.
type KnowledgeTextUpdate struct {
	Text       Optional[string] `json:"text,omitzero"`
	Title      Optional[string] `json:"title,omitzero"`
	ParentID   Nullable[string] `json:"parentId,omitzero"`
	TeamID     Nullable[string] `json:"teamId,omitzero"`
	UserID     Nullable[string] `json:"userId,omitzero"`
	TenantWide Optional[bool]   `json:"tenantWide,omitzero"`
	Meta       Optional[Meta]   `json:"meta,omitzero"`
	Hidden     Optional[bool]   `json:"hidden,omitzero"`
}

// IsEmpty reports whether the update carries no fields at all
func (u KnowledgeTextUpdate) IsEmpty() bool {
	return !u.Text.IsSet() && !u.Title.IsSet() &&
		!u.ParentID.IsSet() && !u.TeamID.IsSet() && !u.UserID.IsSet() &&
		!u.TenantWide.IsSet() && !u.Meta.IsSet() && !u.Hidden.IsSet()
}

// ValidateInsert checks that the required fields of a creation payload are present.
func ValidateInsert(in *KnowledgeTextInsert) error {
	if in == nil {
		return NewDomainError(ErrCodeValidation, "insert payload cannot be nil")
	}
	if in.TenantID == "" {
		return ErrMissingTenantID
	}
	if in.Text == "" {
		return ErrMissingText
	}
	if in.Title == "" {
		return ErrMissingTitle
	}
	return nil
}

// ValidateUpdate rejects updates that would blank a required field.
func ValidateUpdate(u *KnowledgeTextUpdate) error {
	if u == nil {
		return nil
	}
	if title, ok := u.Title.Get(); ok && title == "" {
		return ErrMissingTitle
	}
	return nil
}

// ValidateKnowledgeText validates a KnowledgeText before it is persisted
func ValidateKnowledgeText(k *KnowledgeText) error {
	if k == nil {
		return NewDomainError(ErrCodeValidation, "knowledge text cannot be nil")
	}
	if k.ID == "" {
		return ErrMissingID
	}
	if k.TenantID == "" {
		return ErrMissingTenantID
	}
	if k.Title == "" {
		return ErrMissingTitle
	}
	if k.ParentID != nil && *k.ParentID == k.ID {
		return ErrHierarchyCycle
	}
	return nil
}

// NewKnowledgeText materialises an insert payload into a new record
func NewKnowledgeText(id string, in KnowledgeTextInsert, now time.Time) *KnowledgeText {
	meta := in.Meta.OrElse(nil).Clone()
	return &KnowledgeText{
		ID:         id,
		TenantID:   in.TenantID,
		TenantWide: in.TenantWide.OrElse(false),
		TeamID:     in.TeamID.Ptr(),
		UserID:     in.UserID.Ptr(),
		ParentID:   in.ParentID.Ptr(),
		Text:       Some(in.Text),
		Title:      in.Title,
		Meta:       meta,
		Hidden:     in.Hidden.OrElse(false),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Apply applies a partial update in place and reports whether any field changed.
// It does not touch UpdatedAt.
func (k *KnowledgeText) Apply(u KnowledgeTextUpdate) bool {
	changed := false

	if v, ok := u.Text.Get(); ok {
		if cur, has := k.Text.Get(); !has || cur != v {
			k.Text = Some(v)
			changed = true
		}
	}
	if v, ok := u.Title.Get(); ok && v != k.Title {
		k.Title = v
		changed = true
	}
	if u.ParentID.IsSet() {
		changed = applyNullable(&k.ParentID, u.ParentID) || changed
	}
	if u.TeamID.IsSet() {
		changed = applyNullable(&k.TeamID, u.TeamID) || changed
	}
	if u.UserID.IsSet() {
		changed = applyNullable(&k.UserID, u.UserID) || changed
	}
	if v, ok := u.TenantWide.Get(); ok && v != k.TenantWide {
		k.TenantWide = v
		changed = true
	}
	if v, ok := u.Meta.Get(); ok && !v.Equal(k.Meta) {
		k.Meta = v.Clone()
		changed = true
	}
	if v, ok := u.Hidden.Get(); ok && v != k.Hidden {
		k.Hidden = v
		changed = true
	}

	return changed
}

func applyNullable(dst **string, n Nullable[string]) bool {
	next := n.Ptr()
	if equalStringPtr(*dst, next) {
		return false
	}
	*dst = next
	return true
}

// ToUpdate projects the record onto the update shape, carrying every shared field.
func (k *KnowledgeText) ToUpdate() KnowledgeTextUpdate {
	return KnowledgeTextUpdate{
		Text:       k.Text,
		Title:      Some(k.Title),
		ParentID:   NullableFromPtr(k.ParentID),
		TeamID:     NullableFromPtr(k.TeamID),
		UserID:     NullableFromPtr(k.UserID),
		TenantWide: Some(k.TenantWide),
		Meta:       Some(k.Meta.Clone()),
		Hidden:     Some(k.Hidden),
	}
}

// IsDeleted reports whether the record carries a soft-delete marker
func (k *KnowledgeText) IsDeleted() bool {
	return k.DeletedAt != nil
}

// Clone returns a deep copy without Children
func (k *KnowledgeText) Clone() *KnowledgeText {
	c := *k
	c.TeamID = copyStringPtr(k.TeamID)
	c.UserID = copyStringPtr(k.UserID)
	c.ParentID = copyStringPtr(k.ParentID)
	if k.DeletedAt != nil {
		d := *k.DeletedAt
		c.DeletedAt = &d
	}
	if k.Meta != nil {
		c.Meta = k.Meta.Clone()
	}
	c.Children = nil
	return &c
}

// Summary returns a copy without the body text, as used by list views.
func (k *KnowledgeText) Summary() *KnowledgeText {
	c := k.Clone()
	c.Text = None[string]()
	return c
}

func copyStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
