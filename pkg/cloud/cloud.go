package cloud

import (
	"context"
	"time"

	"github.com/oci-hpc/felix/pkg/types"
)

// UpdateDetails is the payload of the single mutating compute call.
type UpdateDetails struct {
	TimeWindowStart *time.Time
	FreeformTags    map[string]string
}

// Compute is the cloud compute collaborator. Implementations must be
// safe for concurrent use by orchestrator workers.
//
// UpdateMaintenanceEvent is the only mutating operation; everything
// else is a read.
type Compute interface {
	ListCompartments(ctx context.Context) ([]string, error)
	ListMaintenanceEvents(ctx context.Context, compartmentID string) ([]types.MaintenanceEvent, error)
	GetMaintenanceEvent(ctx context.Context, eventID string) (types.MaintenanceEvent, error)
	UpdateMaintenanceEvent(ctx context.Context, eventID string, details UpdateDetails) (workRequestID string, err error)
	GetWorkRequest(ctx context.Context, workRequestID string) (types.WorkRequestStatus, error)
}
