package store

import (
	"time"

	"github.com/google/uuid"
)

// NewBatchID returns a fresh batch identifier.
func NewBatchID() string {
	return uuid.NewString()
}

// prepareBatch fills the generated fields of b before an insert.
func prepareBatch(b *Batch, n int) {
	if b.ID == "" {
		b.ID = NewBatchID()
	}
	b.Inserted = n
	b.CreatedAt = time.Now().UTC()
}
