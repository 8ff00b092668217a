package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/common/auth"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/oracle/oci-go-sdk/v65/workrequests"

	"github.com/oci-hpc/felix/pkg/log"
	"github.com/oci-hpc/felix/pkg/types"
)

// Additional-details keys carrying the fault list; both spellings occur
// across provider regions.
var faultDetailKeys = []string{"faultDetails", "fault_details"}

// OCIClient implements Compute against the OCI SDK.
type OCIClient struct {
	compute  core.ComputeClient
	identity identity.IdentityClient
	work     workrequests.WorkRequestClient
	tenancy  string
	retry    *common.RetryPolicy
}

// NewOCIClient builds the SDK clients using instance-principal auth,
// falling back to the local config file for development hosts.
func NewOCIClient(tenancyOCID, region string) (*OCIClient, error) {
	provider, err := auth.InstancePrincipalConfigurationProvider()
	if err != nil {
		logger := log.WithComponent("cloud")
		logger.Debug().Err(err).Msg("instance principal unavailable, using config file")
		provider = common.DefaultConfigProvider()
	}

	compute, err := core.NewComputeClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("compute client: %w", err)
	}
	ident, err := identity.NewIdentityClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("identity client: %w", err)
	}
	work, err := workrequests.NewWorkRequestClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("workrequests client: %w", err)
	}

	compute.SetRegion(region)
	ident.SetRegion(region)
	work.SetRegion(region)

	policy := common.DefaultRetryPolicy()
	return &OCIClient{
		compute:  compute,
		identity: ident,
		work:     work,
		tenancy:  tenancyOCID,
		retry:    &policy,
	}, nil
}

func (c *OCIClient) metadata() common.RequestMetadata {
	return common.RequestMetadata{RetryPolicy: c.retry}
}

// ListCompartments returns the tenancy root plus all active
// compartments beneath it.
func (c *OCIClient) ListCompartments(ctx context.Context) ([]string, error) {
	ids := []string{c.tenancy}
	var page *string
	for {
		resp, err := c.identity.ListCompartments(ctx, identity.ListCompartmentsRequest{
			CompartmentId:          common.String(c.tenancy),
			CompartmentIdInSubtree: common.Bool(true),
			Page:                   page,
			RequestMetadata:        c.metadata(),
		})
		if err != nil {
			return nil, fmt.Errorf("list compartments: %w", err)
		}
		for _, comp := range resp.Items {
			if comp.Id != nil {
				ids = append(ids, *comp.Id)
			}
		}
		if resp.OpcNextPage == nil {
			return ids, nil
		}
		page = resp.OpcNextPage
	}
}

// ListMaintenanceEvents lists event summaries in one compartment.
// Fault details are only present on the full event record, so callers
// follow up with GetMaintenanceEvent.
func (c *OCIClient) ListMaintenanceEvents(ctx context.Context, compartmentID string) ([]types.MaintenanceEvent, error) {
	var events []types.MaintenanceEvent
	var page *string
	for {
		resp, err := c.compute.ListInstanceMaintenanceEvents(ctx, core.ListInstanceMaintenanceEventsRequest{
			CompartmentId:   common.String(compartmentID),
			Page:            page,
			RequestMetadata: c.metadata(),
		})
		if err != nil {
			return nil, fmt.Errorf("list maintenance events in %s: %w", compartmentID, err)
		}
		for _, sum := range resp.Items {
			events = append(events, types.MaintenanceEvent{
				ID:              deref(sum.Id),
				InstanceID:      deref(sum.InstanceId),
				CompartmentID:   compartmentID,
				DisplayName:     deref(sum.DisplayName),
				InstanceAction:  string(sum.InstanceAction),
				LifecycleState:  types.LifecycleState(sum.LifecycleState),
				TimeWindowStart: sdkTime(sum.TimeWindowStart),
				TimeCreated:     sdkTime(sum.TimeCreated),
				TimeStarted:     sdkTime(sum.TimeStarted),
				TimeFinished:    sdkTime(sum.TimeFinished),
			})
		}
		if resp.OpcNextPage == nil {
			return events, nil
		}
		page = resp.OpcNextPage
	}
}

// GetMaintenanceEvent reads the full event record, including fault
// details and freeform tags.
func (c *OCIClient) GetMaintenanceEvent(ctx context.Context, eventID string) (types.MaintenanceEvent, error) {
	resp, err := c.compute.GetInstanceMaintenanceEvent(ctx, core.GetInstanceMaintenanceEventRequest{
		InstanceMaintenanceEventId: common.String(eventID),
		RequestMetadata:            c.metadata(),
	})
	if err != nil {
		return types.MaintenanceEvent{}, fmt.Errorf("get maintenance event %s: %w", eventID, err)
	}
	ev := resp.InstanceMaintenanceEvent
	return types.MaintenanceEvent{
		ID:              deref(ev.Id),
		InstanceID:      deref(ev.InstanceId),
		CompartmentID:   deref(ev.CompartmentId),
		DisplayName:     deref(ev.DisplayName),
		InstanceAction:  string(ev.InstanceAction),
		LifecycleState:  types.LifecycleState(ev.LifecycleState),
		FaultIDs:        faultIDs(ev.AdditionalDetails),
		TimeWindowStart: sdkTime(ev.TimeWindowStart),
		TimeCreated:     sdkTime(ev.TimeCreated),
		TimeStarted:     sdkTime(ev.TimeStarted),
		TimeFinished:    sdkTime(ev.TimeFinished),
		FreeformTags:    ev.FreeformTags,
	}, nil
}

// UpdateMaintenanceEvent requests the maintenance window change and
// returns the provider's work-request handle.
func (c *OCIClient) UpdateMaintenanceEvent(ctx context.Context, eventID string, details UpdateDetails) (string, error) {
	upd := core.UpdateInstanceMaintenanceEventDetails{
		FreeformTags: details.FreeformTags,
	}
	if details.TimeWindowStart != nil {
		upd.TimeWindowStart = &common.SDKTime{Time: details.TimeWindowStart.UTC()}
	}
	resp, err := c.compute.UpdateInstanceMaintenanceEvent(ctx, core.UpdateInstanceMaintenanceEventRequest{
		InstanceMaintenanceEventId:            common.String(eventID),
		UpdateInstanceMaintenanceEventDetails: upd,
		RequestMetadata:                       c.metadata(),
	})
	if err != nil {
		return "", fmt.Errorf("update maintenance event %s: %w", eventID, err)
	}
	if resp.OpcWorkRequestId == nil {
		return "", fmt.Errorf("update maintenance event %s: no work request id in response", eventID)
	}
	return *resp.OpcWorkRequestId, nil
}

// GetWorkRequest reads the status of an asynchronous operation.
func (c *OCIClient) GetWorkRequest(ctx context.Context, workRequestID string) (types.WorkRequestStatus, error) {
	resp, err := c.work.GetWorkRequest(ctx, workrequests.GetWorkRequestRequest{
		WorkRequestId:   common.String(workRequestID),
		RequestMetadata: c.metadata(),
	})
	if err != nil {
		return "", fmt.Errorf("get work request %s: %w", workRequestID, err)
	}
	return types.WorkRequestStatus(resp.WorkRequest.Status), nil
}

// faultIDs extracts fault ids from the additional-details map. The
// fault list is itself a JSON-encoded string value.
func faultIDs(details map[string]string) []string {
	var raw string
	for _, key := range faultDetailKeys {
		if v, ok := details[key]; ok && v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		return nil
	}
	var entries []map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger := log.WithComponent("cloud")
		logger.Warn().Err(err).Msg("fault details not JSON-decodable")
		return nil
	}
	var ids []string
	for _, e := range entries {
		for _, key := range []string{"faultId", "fault_id"} {
			if v, ok := e[key].(string); ok && v != "" {
				ids = append(ids, v)
				break
			}
		}
	}
	return ids
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sdkTime(t *common.SDKTime) *time.Time {
	if t == nil {
		return nil
	}
	tt := t.Time
	return &tt
}
