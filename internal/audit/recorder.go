package audit

import (
	"context"
	"log/slog"

	"github.com/workboard/workboard/internal/db/models"
)

// Store persists audit rows. *repositories.AuditRepository implements it.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder writes each entry to the store and then ships a copy. It satisfies
// the audit middleware's recorder interface.
type Recorder struct {
	store   Store
	shipper Shipper
}

// NewRecorder returns a Recorder. A nil shipper records to the store only.
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{store: store, shipper: shipper}
}

// CreateAuditLog stores the entry and ships it once stored. Only a store
// failure is returned; shipping failures are logged.
func (r *Recorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if err := r.store.CreateAuditLog(ctx, log); err != nil {
		return err
	}
	if r.shipper == nil {
		return nil
	}
	if err := r.shipper.Ship(ctx, EntryFromModel(log)); err != nil {
		slog.WarnContext(ctx, "audit: failed to ship entry", "action", log.Action, "error", err)
	}
	return nil
}
