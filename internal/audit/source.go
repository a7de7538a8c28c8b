package audit

import (
	"context"
	"fmt"

	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

// RecordLister lists table records. *feishu.Client satisfies it.
type RecordLister interface {
	ListAllRecords(ctx context.Context, app, table string, opts feishu.ListOptions) ([]feishu.Record, error)
}

// Joiner inner-joins two tables. *bitable.Engine satisfies it.
type Joiner interface {
	Join(ctx context.Context, app, left, right, on string, selectFields []string) ([]map[string]interface{}, error)
}

// TableSource locates store data in a bitable app
type TableSource struct {
	App         string
	SalesTable  string
	TargetTable string
	// JoinField joins the sales and target tables; the store name column
	// of the profile when empty
	JoinField string
}

// FetchStores reads store records from the sales table. When a target table
// is given and the join yields rows, the joined rows are used instead.
func FetchStores(ctx context.Context, lister RecordLister, joiner Joiner, cfg *Config, src TableSource) ([]map[string]interface{}, error) {
	records, err := lister.ListAllRecords(ctx, src.App, src.SalesTable, feishu.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read sales table: %w", err)
	}

	stores := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		fields := r.Fields
		if fields == nil {
			fields = map[string]interface{}{}
		}
		stores = append(stores, fields)
	}

	if src.TargetTable == "" || joiner == nil {
		return stores, nil
	}

	on := src.JoinField
	if on == "" {
		on = cfg.Field("store_name")
	}
	joined, err := joiner.Join(ctx, src.App, src.SalesTable, src.TargetTable, on, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to join target table: %w", err)
	}
	if len(joined) > 0 {
		return joined, nil
	}
	return stores, nil
}
