package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
)

// Service resolves and manages account roles.
type Service interface {
	ResolveRole(ctx context.Context, identity Identity) (enums.Role, error)
	ChangeRole(ctx context.Context, actor access.Actor, targetUID uuid.UUID, role string) (*AccountDTO, error)
	ListAccounts(ctx context.Context, actor access.Actor) ([]AccountDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo        *Repository
	DB          txRunner
	Outbox      outbox.Emitter
	Logger      *logger.Logger
	AdminEmails []string
}

type service struct {
	repo        *Repository
	db          txRunner
	outbox      outbox.Emitter
	logg        *logger.Logger
	adminEmails map[string]struct{}
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("roles repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	allow := make(map[string]struct{}, len(params.AdminEmails))
	for _, email := range params.AdminEmails {
		if key := normalizeEmail(email); key != "" {
			allow[key] = struct{}{}
		}
	}
	return &service{
		repo:        params.Repo,
		db:          params.DB,
		outbox:      params.Outbox,
		logg:        params.Logger,
		adminEmails: allow,
	}, nil
}

// ResolveRole returns the stored role, creating the account on first sight.
// The allow-list is only consulted when the account is created.
func (s *service) ResolveRole(ctx context.Context, identity Identity) (enums.Role, error) {
	if identity.UID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	account, err := s.repo.FindByUID(ctx, identity.UID)
	if err == nil {
		return account.Role, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}

	role := enums.RoleUser
	if _, ok := s.adminEmails[normalizeEmail(identity.Email)]; ok {
		role = enums.RoleAdmin
	}
	created := &models.UserAccount{
		UID:   identity.UID,
		Email: normalizeEmail(identity.Email),
		Role:  role,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, created); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			Collection: enums.CollectionUsers,
			Op:         enums.ChangeUpsert,
			RecordID:   created.UID,
			ActorID:    &created.UID,
			Data:       FromModel(created),
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			// a concurrent first sign-in won the insert
			existing, findErr := s.repo.FindByUID(ctx, identity.UID)
			if findErr != nil {
				return "", pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload account")
			}
			return existing.Role, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id": created.UID.String(),
			"role":    created.Role,
		})
		s.logg.Info(logCtx, "account created")
	}
	return created.Role, nil
}

func (s *service) ChangeRole(ctx context.Context, actor access.Actor, targetUID uuid.UUID, role string) (*AccountDTO, error) {
	if err := access.Authorize(actor, access.OpManageRoles); err != nil {
		return nil, err
	}
	if targetUID == actor.UID {
		return nil, pkgerrors.New(pkgerrors.CodeSelfRoleChange, "cannot change your own role")
	}
	newRole, err := enums.ParseRole(role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
	}

	var updated *models.UserAccount
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		account, err := s.repo.UpdateRoleTx(tx, targetUID, newRole)
		if err != nil {
			return err
		}
		updated = account
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			Collection: enums.CollectionUsers,
			Op:         enums.ChangeUpsert,
			RecordID:   account.UID,
			ActorID:    &actor.UID,
			Data:       FromModel(account),
		})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update role")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"target_uid": targetUID.String(),
			"new_role":   newRole,
		})
		s.logg.Info(logCtx, "role changed")
	}
	return FromModel(updated), nil
}

func (s *service) ListAccounts(ctx context.Context, actor access.Actor) ([]AccountDTO, error) {
	if err := access.Authorize(actor, access.OpManageRoles); err != nil {
		return nil, err
	}
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list accounts")
	}
	out := make([]AccountDTO, 0, len(accounts))
	for i := range accounts {
		out = append(out, *FromModel(&accounts[i]))
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
