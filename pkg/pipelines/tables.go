package pipelines

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"go.uber.org/zap"
)

// TableOptions selects how to reach Azure Table Storage. ConnectionString wins over
// Account+Key, which wins over ambient credentials (managed identity, CLI, env).
type TableOptions struct {
	Account          string
	Key              string
	ConnectionString string
	Table            string
	HTTPClient       *http.Client
}

type tableStore struct {
	table string
	log   *zap.SugaredLogger
	list  func(ctx context.Context, filter string) ([][]byte, error)
}

// NewTableStore builds an Azure Table Storage backed store.
func NewTableStore(opts TableOptions, log *zap.SugaredLogger) (Store, error) {
	copts := &aztables.ClientOptions{}
	if opts.HTTPClient != nil {
		copts.ClientOptions = azcore.ClientOptions{Transport: opts.HTTPClient}
	}
	serviceURL := fmt.Sprintf("https://%s.table.core.windows.net", opts.Account)

	var (
		svc *aztables.ServiceClient
		err error
	)
	switch {
	case opts.ConnectionString != "":
		svc, err = aztables.NewServiceClientFromConnectionString(opts.ConnectionString, copts)
	case opts.Key != "":
		var cred *aztables.SharedKeyCredential
		if cred, err = aztables.NewSharedKeyCredential(opts.Account, opts.Key); err != nil {
			return nil, fmt.Errorf("build shared key credential: %w", err)
		}
		svc, err = aztables.NewServiceClientWithSharedKey(serviceURL, cred, copts)
	default:
		var cred azcore.TokenCredential
		if cred, err = azidentity.NewDefaultAzureCredential(nil); err != nil {
			return nil, fmt.Errorf("build default azure credential: %w", err)
		}
		svc, err = aztables.NewServiceClient(serviceURL, cred, copts)
	}
	if err != nil {
		return nil, fmt.Errorf("create table service client: %w", err)
	}
	client := svc.NewClient(opts.Table)
	log.Infow("table store ready", "account", opts.Account, "table", opts.Table)

	return &tableStore{
		table: opts.Table,
		log:   log,
		list: func(ctx context.Context, filter string) ([][]byte, error) {
			var out [][]byte
			pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
			for pager.More() {
				page, err := pager.NextPage(ctx)
				if err != nil {
					return nil, err
				}
				out = append(out, page.Entities...)
			}
			return out, nil
		},
	}, nil
}

// PartitionFilter builds an OData equality filter on PartitionKey.
func PartitionFilter(tenantID string) string {
	return fmt.Sprintf("PartitionKey eq '%s'", strings.ReplaceAll(tenantID, "'", "''"))
}

func (s *tableStore) ListByTenant(ctx context.Context, tenantID string) ([]Record, error) {
	entities, err := s.list(ctx, PartitionFilter(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", s.table, err)
	}
	records := make([]Record, 0, len(entities))
	for i, e := range entities {
		r, err := recordFromEntity(e)
		if err != nil {
			s.log.Warnw("skipping undecodable entity", "tenant", tenantID, "index", i, "err", err)
			continue
		}
		records = append(records, r)
	}
	s.log.Debugw("pipelines queried", "tenant", tenantID, "count", len(records))
	return records, nil
}

// recordFromEntity reads the pipeline attributes from a table entity. Attributes stored
// with a non-string Edm type are treated as absent.
func recordFromEntity(raw []byte) (Record, error) {
	var props map[string]any
	if err := json.Unmarshal(raw, &props); err != nil {
		return Record{}, fmt.Errorf("decode entity: %w", err)
	}
	str := func(name string) *string {
		if v, ok := props[name].(string); ok {
			return &v
		}
		return nil
	}
	r := Record{
		PipelineName:           str("PipelineName"),
		PipelineLink:           str("PipelineLink"),
		PipelineDescription:    str("PipelineDescription"),
		InputFieldInstructions: str("InputFieldInstructions"),
	}
	r.PartitionKey, _ = props["PartitionKey"].(string)
	r.RowKey, _ = props["RowKey"].(string)
	return r, nil
}
