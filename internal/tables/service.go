package tables

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/catalog"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

// table is a browsable table. Edits and deletes go through the owning
// service so the change feed and name rules stay intact; tables without them
// are read-only here.
type table struct {
	name   string
	key    string
	edit   editFunc
	delete func(ctx context.Context, actor access.Actor, id uuid.UUID) error
}

// editFunc applies column edits to one row and returns the updated record.
type editFunc func(ctx context.Context, actor access.Actor, id uuid.UUID, fields map[string]any) (any, error)

type itemEditor interface {
	UpdateItem(ctx context.Context, actor access.Actor, id uuid.UUID, input inventory.UpdateItemInput) (*inventory.ItemDTO, error)
	DeleteItem(ctx context.Context, actor access.Actor, id uuid.UUID) error
}

type catalogEditor interface {
	Rename(ctx context.Context, actor access.Actor, kind enums.CatalogKind, id uuid.UUID, name string) (*catalog.EntryDTO, error)
	Delete(ctx context.Context, actor access.Actor, kind enums.CatalogKind, id uuid.UUID) error
}

type rowStore interface {
	Count(ctx context.Context, table string) (int64, error)
	Rows(ctx context.Context, table, key string, limit, offset int) ([]map[string]any, error)
}

// Service is the admin raw table browser.
type Service interface {
	List(ctx context.Context, actor access.Actor) ([]TableInfo, error)
	Rows(ctx context.Context, actor access.Actor, name string, limit, offset int) (*RowsPage, error)
	Edit(ctx context.Context, actor access.Actor, name string, id uuid.UUID, fields map[string]any) (any, error)
	Delete(ctx context.Context, actor access.Actor, name string, id uuid.UUID) error
}

type ServiceParams struct {
	Repo    rowStore
	Items   itemEditor
	Catalog catalogEditor
	Logger  *logger.Logger
}

type service struct {
	repo   rowStore
	tables []table
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("tables repository required")
	}
	if params.Items == nil || params.Catalog == nil {
		return nil, fmt.Errorf("item and catalog services required")
	}
	catalogDelete := func(kind enums.CatalogKind) func(context.Context, access.Actor, uuid.UUID) error {
		return func(ctx context.Context, actor access.Actor, id uuid.UUID) error {
			return params.Catalog.Delete(ctx, actor, kind, id)
		}
	}
	// credentials and outbox_events are never exposed. Stock columns and the
	// logs are changed only through the ledger.
	tables := []table{
		{name: "items", key: "id", edit: itemEdit(params.Items), delete: params.Items.DeleteItem},
		{name: "employees", key: "id", edit: catalogRename(params.Catalog, enums.CatalogEmployees), delete: catalogDelete(enums.CatalogEmployees)},
		{name: "machines", key: "id", edit: catalogRename(params.Catalog, enums.CatalogMachines), delete: catalogDelete(enums.CatalogMachines)},
		{name: "suppliers", key: "id", edit: catalogRename(params.Catalog, enums.CatalogSuppliers), delete: catalogDelete(enums.CatalogSuppliers)},
		{name: "usage_events", key: "id"},
		{name: "purchase_events", key: "id"},
		{name: "user_accounts", key: "uid"},
	}
	return &service{repo: params.Repo, tables: tables, logg: params.Logger}, nil
}

func (s *service) List(ctx context.Context, actor access.Actor) ([]TableInfo, error) {
	if err := access.Authorize(actor, access.OpRawTables); err != nil {
		return nil, err
	}
	out := make([]TableInfo, 0, len(s.tables))
	for _, t := range s.tables {
		n, err := s.repo.Count(ctx, t.name)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count rows")
		}
		out = append(out, TableInfo{Name: t.name, Key: t.key, RowCount: n, Editable: t.edit != nil, Deletable: t.delete != nil})
	}
	return out, nil
}

func (s *service) Rows(ctx context.Context, actor access.Actor, name string, limit, offset int) (*RowsPage, error) {
	if err := access.Authorize(actor, access.OpRawTables); err != nil {
		return nil, err
	}
	t, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offset must not be negative")
	}
	size := pagination.NormalizeLimit(limit)
	raw, err := s.repo.Rows(ctx, t.name, t.key, size+1, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read rows")
	}

	page := &RowsPage{Table: t.name, Rows: make([]Row, 0, len(raw))}
	if len(raw) > size {
		raw = raw[:size]
		next := offset + size
		page.NextOffset = &next
	}
	for _, r := range raw {
		page.Rows = append(page.Rows, normalize(r))
	}
	return page, nil
}

func (s *service) Edit(ctx context.Context, actor access.Actor, name string, id uuid.UUID, fields map[string]any) (any, error) {
	if err := access.Authorize(actor, access.OpRawTables); err != nil {
		return nil, err
	}
	t, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if t.edit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("table %s is read-only", t.name))
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no columns to edit")
	}
	updated, err := t.edit(ctx, actor, id, fields)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"table": t.name, "record_id": id.String()}), "raw table row edited")
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, actor access.Actor, name string, id uuid.UUID) error {
	if err := access.Authorize(actor, access.OpRawTables); err != nil {
		return err
	}
	t, err := s.lookup(name)
	if err != nil {
		return err
	}
	if t.delete == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("table %s is read-only", t.name))
	}
	if err := t.delete(ctx, actor, id); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"table": t.name, "record_id": id.String()}), "raw table row deleted")
	}
	return nil
}

func (s *service) lookup(name string) (table, error) {
	for _, t := range s.tables {
		if t.name == name {
			return t, nil
		}
	}
	return table{}, pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
}

func itemEdit(items itemEditor) editFunc {
	return func(ctx context.Context, actor access.Actor, id uuid.UUID, fields map[string]any) (any, error) {
		var input inventory.UpdateItemInput
		for column, value := range fields {
			switch column {
			case "name":
				v, err := textColumn(column, value)
				if err != nil {
					return nil, err
				}
				input.Name = &v
			case "category":
				v, err := textColumn(column, value)
				if err != nil {
					return nil, err
				}
				input.Category = &v
			case "low_stock_threshold":
				v, err := intColumn(column, value)
				if err != nil {
					return nil, err
				}
				input.LowStockThreshold = &v
			default:
				return nil, notEditable(column)
			}
		}
		return items.UpdateItem(ctx, actor, id, input)
	}
}

func catalogRename(entries catalogEditor, kind enums.CatalogKind) editFunc {
	return func(ctx context.Context, actor access.Actor, id uuid.UUID, fields map[string]any) (any, error) {
		for column := range fields {
			if column != "name" {
				return nil, notEditable(column)
			}
		}
		name, err := textColumn("name", fields["name"])
		if err != nil {
			return nil, err
		}
		return entries.Rename(ctx, actor, kind, id, name)
	}
}

func textColumn(column string, value any) (string, error) {
	v, ok := value.(string)
	if !ok {
		return "", badColumn(column, "must be a string")
	}
	return v, nil
}

// intColumn accepts JSON numbers with no fractional part.
func intColumn(column string, value any) (int, error) {
	f, ok := value.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, badColumn(column, "must be an integer")
	}
	if f < math.MinInt32 || f > inventory.MaxQuantity {
		return 0, badColumn(column, "is out of range")
	}
	return int(f), nil
}

func badColumn(column, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid column value").
		WithDetails(map[string]string{column: msg})
}

func notEditable(column string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "column is not editable").
		WithDetails(map[string]any{"column": column})
}

// normalize turns driver byte slices into strings so rows encode as JSON text.
func normalize(raw map[string]any) Row {
	row := make(Row, len(raw))
	for k, v := range raw {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
			continue
		}
		row[k] = v
	}
	return row
}
