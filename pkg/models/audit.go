package models

import "time"

// Audit is embedded by every persisted entity. The store stamps CreatedAt and
// UpdatedAt on save; DeletedAt marks a soft-deleted row.
type Audit struct {
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// Stamp sets CreatedAt on first save and UpdatedAt on every save.
func (a *Audit) Stamp(now time.Time) {
	now = now.UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

func (a Audit) IsDeleted() bool {
	return a.DeletedAt != nil
}
