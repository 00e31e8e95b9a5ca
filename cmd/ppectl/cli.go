package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/ledger"
	"github.com/ppetrack/ppetrack-backend/internal/reports"
	"github.com/ppetrack/ppetrack-backend/internal/roles"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

const usageText = `usage: ppectl -as EMAIL <command> [flags]

commands:
  usage record   -item ID -employee ID -machine ID -location L -qty N [-notes TEXT]
  restock apply  -item ID -supplier ID -location L -qty N -cost AMOUNT
  role set       -target-uid UID -role user|manager|admin
  report query   -dimension item|employee|machine|supplier -id ID [-from DATE] [-to DATE] [-format json|csv]
`

type accountFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.UserAccount, error)
}

// app holds the services a CLI command runs against.
type app struct {
	Accounts accountFinder
	Roles    roles.Service
	Ledger   ledger.Service
	Reports  reports.Service
}

// usageError marks bad invocations; they exit with code 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func run(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	err := dispatch(ctx, a, args, stdout)
	if err == nil {
		return exitOK
	}
	var uerr usageError
	if errors.As(err, &uerr) {
		fmt.Fprintf(stderr, "%s\n\n%s", uerr.msg, usageText)
		return exitUsage
	}
	if typed := pkgerrors.As(err); typed != nil {
		fmt.Fprintf(stderr, "%s: %s\n", typed.Code(), typed.Message())
		return exitFailed
	}
	fmt.Fprintf(stderr, "%s: %v\n", pkgerrors.CodeInternal, err)
	return exitFailed
}

func dispatch(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("ppectl", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	email := global.String("as", "", "acting account email")
	if err := global.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if strings.TrimSpace(*email) == "" {
		return usagef("-as is required")
	}
	rest := global.Args()
	if len(rest) < 2 {
		return usagef("missing command")
	}

	command := rest[0] + " " + rest[1]
	handler, ok := map[string]func(context.Context, *app, access.Actor, []string, io.Writer) error{
		"usage record":  usageRecord,
		"restock apply": restockApply,
		"role set":      roleSet,
		"report query":  reportQuery,
	}[command]
	if !ok {
		return usagef("unknown command %q", command)
	}

	actor, err := a.actor(ctx, *email)
	if err != nil {
		return err
	}
	return handler(ctx, a, actor, rest[2:], stdout)
}

func (a *app) actor(ctx context.Context, email string) (access.Actor, error) {
	account, err := a.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return access.Actor{}, pkgerrors.New(pkgerrors.CodeNotFound, "no account for "+email)
		}
		return access.Actor{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	// ResolveRole reads the stored role; the account row always exists here.
	role, err := a.Roles.ResolveRole(ctx, roles.Identity{UID: account.UID, Email: account.Email})
	if err != nil {
		return access.Actor{}, err
	}
	return access.Actor{UID: account.UID, Email: account.Email, Role: role}, nil
}

func usageRecord(ctx context.Context, a *app, actor access.Actor, args []string, out io.Writer) error {
	fs := newFlagSet("usage record")
	item := fs.String("item", "", "item id")
	employee := fs.String("employee", "", "employee id")
	machine := fs.String("machine", "", "machine id")
	location := fs.String("location", "", "location1 or location2")
	qty := fs.Int("qty", 0, "quantity")
	notes := fs.String("notes", "", "notes")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	ids, err := parseIDs(map[string]string{"item": *item, "employee": *employee, "machine": *machine})
	if err != nil {
		return err
	}
	event, err := a.Ledger.RecordUsage(ctx, actor, ledger.RecordUsageInput{
		ItemID:     ids["item"],
		EmployeeID: ids["employee"],
		MachineID:  ids["machine"],
		Location:   *location,
		Quantity:   *qty,
		Notes:      *notes,
	})
	if err != nil {
		return err
	}
	return writeJSON(out, event)
}

func restockApply(ctx context.Context, a *app, actor access.Actor, args []string, out io.Writer) error {
	fs := newFlagSet("restock apply")
	item := fs.String("item", "", "item id")
	supplier := fs.String("supplier", "", "supplier id")
	location := fs.String("location", "", "location1 or location2")
	qty := fs.Int("qty", 0, "quantity")
	cost := fs.String("cost", "", "total cost")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	ids, err := parseIDs(map[string]string{"item": *item, "supplier": *supplier})
	if err != nil {
		return err
	}
	totalCost, err := decimal.NewFromString(*cost)
	if err != nil {
		return usagef("-cost must be a decimal amount")
	}
	event, err := a.Ledger.RecordRestock(ctx, actor, ledger.RecordRestockInput{
		ItemID:     ids["item"],
		SupplierID: ids["supplier"],
		Location:   *location,
		Quantity:   *qty,
		TotalCost:  totalCost,
	})
	if err != nil {
		return err
	}
	return writeJSON(out, event)
}

func roleSet(ctx context.Context, a *app, actor access.Actor, args []string, out io.Writer) error {
	fs := newFlagSet("role set")
	target := fs.String("target-uid", "", "account uid")
	role := fs.String("role", "", "user, manager or admin")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	ids, err := parseIDs(map[string]string{"target-uid": *target})
	if err != nil {
		return err
	}
	account, err := a.Roles.ChangeRole(ctx, actor, ids["target-uid"], *role)
	if err != nil {
		return err
	}
	return writeJSON(out, account)
}

func reportQuery(ctx context.Context, a *app, actor access.Actor, args []string, out io.Writer) error {
	fs := newFlagSet("report query")
	dimension := fs.String("dimension", "", "item, employee, machine or supplier")
	id := fs.String("id", "", "entity id")
	from := fs.String("from", "", "start date (inclusive)")
	to := fs.String("to", "", "end date (inclusive day)")
	format := fs.String("format", "json", "json or csv")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if err := access.Authorize(actor, access.OpRead); err != nil {
		return err
	}
	dim, err := reports.ParseDimension(*dimension)
	if err != nil {
		return usagef("-dimension must be item, employee, machine or supplier")
	}
	ids, err := parseIDs(map[string]string{"id": *id})
	if err != nil {
		return err
	}
	rng, err := reports.ParseRange(*from, *to)
	if err != nil {
		return err
	}
	query := reports.Query{Dimension: dim, ID: ids["id"], Range: rng, Limit: pagination.MaxLimit}

	switch *format {
	case "csv":
		return a.Reports.Export(ctx, query, out)
	case "json":
		summary, err := a.Reports.Summary(ctx, query)
		if err != nil {
			return err
		}
		events, err := a.Reports.Events(ctx, query)
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]any{"summary": summary, "events": events})
	default:
		return usagef("-format must be json or csv")
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseIDs(raw map[string]string) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID, len(raw))
	for name, value := range raw {
		if strings.TrimSpace(value) == "" {
			return nil, usagef("-%s is required", name)
		}
		id, err := uuid.Parse(strings.TrimSpace(value))
		if err != nil {
			return nil, usagef("-%s must be a uuid", name)
		}
		ids[name] = id
	}
	return ids, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
