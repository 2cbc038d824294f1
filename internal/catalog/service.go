// internal/catalog/service.go
package catalog

import (
	"context"

	"go.uber.org/zap"

	"pipelinehub/pkg/pipelines"
	"pipelinehub/pkg/problems"
)

// Service lists the pipelines visible to a tenant.
type Service struct {
	store pipelines.Store
	log   *zap.SugaredLogger
}

func NewService(store pipelines.Store, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log}
}

// List returns the tenant's pipeline descriptors, never nil. A record whose
// instructions fail to parse is still listed with empty instructions.
func (s *Service) List(ctx context.Context, tenantID string) ([]pipelines.Descriptor, error) {
	records, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, problems.New(problems.StorageAccess, "Failed to query pipelines", err)
	}
	out := make([]pipelines.Descriptor, 0, len(records))
	for _, r := range records {
		// stores filter by partition; anything else never reaches the caller
		if r.PartitionKey != "" && r.PartitionKey != tenantID {
			s.log.Warnw("dropping record from foreign partition", "tenant", tenantID, "partition", r.PartitionKey, "row", r.RowKey)
			continue
		}
		d, ok := r.Descriptor()
		if !ok {
			s.log.Warnw("unparseable InputFieldInstructions, using {}", "tenant", tenantID, "row", r.RowKey)
		}
		out = append(out, d)
	}
	s.log.Infow("pipelines listed", "tenant", tenantID, "count", len(out))
	return out, nil
}
