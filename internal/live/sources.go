package live

import (
	"context"

	"github.com/ppetrack/ppetrack-backend/internal/catalog"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/internal/ledger"
	"github.com/ppetrack/ppetrack-backend/internal/roles"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

type accountLister interface {
	List(ctx context.Context) ([]models.UserAccount, error)
}

// StoreSources builds the snapshot loaders for every subscribable
// collection. Log snapshots hold the newest page of entries matching the
// subscription filter.
func StoreSources(items inventory.Service, entries catalog.Service, events ledger.Service, accounts accountLister) map[enums.Collection]SnapshotFunc {
	sources := map[enums.Collection]SnapshotFunc{
		enums.CollectionItems: func(ctx context.Context, _ Filter) ([]any, error) {
			rows, err := items.ListItems(ctx)
			return toAny(rows), err
		},
		enums.CollectionUsageLog: func(ctx context.Context, filter Filter) ([]any, error) {
			page, err := events.ListUsage(ctx, pagination.Params{Limit: pagination.MaxLimit}, ledger.LogFilter(filter))
			return toAny(page.Items), err
		},
		enums.CollectionPurchaseLog: func(ctx context.Context, filter Filter) ([]any, error) {
			page, err := events.ListPurchases(ctx, pagination.Params{Limit: pagination.MaxLimit}, ledger.LogFilter(filter))
			return toAny(page.Items), err
		},
		enums.CollectionUsers: func(ctx context.Context, _ Filter) ([]any, error) {
			rows, err := accounts.List(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]any, 0, len(rows))
			for i := range rows {
				out = append(out, roles.FromModel(&rows[i]))
			}
			return out, nil
		},
	}
	for _, kind := range []enums.CatalogKind{enums.CatalogEmployees, enums.CatalogMachines, enums.CatalogSuppliers} {
		kind := kind
		sources[enums.CollectionForCatalog(kind)] = func(ctx context.Context, _ Filter) ([]any, error) {
			rows, err := entries.List(ctx, kind)
			return toAny(rows), err
		}
	}
	return sources
}

func toAny[T any](rows []T) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	return out
}
