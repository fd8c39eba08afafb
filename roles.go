package account

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleMessage creates or renames a role
type RoleMessage struct {
	Name string `form:"name" json:"name"`
}

func (m RoleMessage) Type() string {
	return "account.role"
}

func (m RoleMessage) Validate() *goerrors.Error {
	return goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Name, validation.Required, validation.Length(1, 256)),
		)
	}, "invalid role")
}

// RoleMembers is a role together with the identities assigned to it
type RoleMembers struct {
	Role    *Role       `json:"role"`
	Members []*Identity `json:"members"`
}

// RoleAdmin manages roles and memberships. Memberships change
// independently of the identity lifecycle.
type RoleAdmin struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewRoleAdmin(repo RepositoryManager) *RoleAdmin {
	return &RoleAdmin{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (a *RoleAdmin) WithActivitySink(sink ActivitySink) *RoleAdmin {
	a.activity = normalizeActivitySink(sink)
	return a
}

func (a *RoleAdmin) WithLogger(logger Logger) *RoleAdmin {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *RoleAdmin) WithClock(now func() time.Time) *RoleAdmin {
	if now != nil {
		a.now = now
	}
	return a
}

func (a *RoleAdmin) List(ctx context.Context) ([]*Role, error) {
	records, err := a.repo.Roles().List(ctx)
	if err != nil {
		return nil, storeError(err, "failed to list roles")
	}
	return records, nil
}

// Get returns the role and its members
func (a *RoleAdmin) Get(ctx context.Context, roleID string) (*RoleMembers, error) {
	id, err := parseRoleID(roleID)
	if err != nil {
		return nil, err
	}

	role, err := a.repo.Roles().FindByID(ctx, id)
	if err != nil {
		return nil, a.roleError(err, roleID)
	}

	members, err := a.repo.Roles().Members(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to list role members")
	}

	return &RoleMembers{Role: role, Members: members}, nil
}

// Members lists identities assigned to the role
func (a *RoleAdmin) Members(ctx context.Context, roleID string) ([]*Identity, error) {
	details, err := a.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return details.Members, nil
}

// IsInRole reports whether the identity is a member of the named role
func (a *RoleAdmin) IsInRole(ctx context.Context, identityID, roleName string) (bool, error) {
	id, err := uuid.Parse(strings.TrimSpace(identityID))
	if err != nil {
		return false, ErrUserNotFound(identityID)
	}

	assigned, err := a.repo.Roles().RolesOf(ctx, id)
	if err != nil {
		return false, storeError(err, "failed to list identity roles")
	}

	normalized := normalizeRoleName(roleName)
	for _, role := range assigned {
		if role.NormalizedName == normalized {
			return true, nil
		}
	}
	return false, nil
}

// RolesOf lists the roles assigned to an identity
func (a *RoleAdmin) RolesOf(ctx context.Context, identityID string) ([]*Role, error) {
	id, err := uuid.Parse(strings.TrimSpace(identityID))
	if err != nil {
		return nil, ErrUserNotFound(identityID)
	}

	assigned, err := a.repo.Roles().RolesOf(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to list identity roles")
	}
	return assigned, nil
}

func (a *RoleAdmin) Create(ctx context.Context, actor ActorRef, msg RoleMessage) (*Role, error) {
	if verr := msg.Validate(); verr != nil {
		return nil, verr.
			WithTextCode(TextCodeInvalidRequest).
			WithCode(goerrors.CodeBadRequest)
	}

	var role *Role
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := a.repo.Roles().CreateTx(ctx, tx, msg.Name)
		if err != nil {
			return err
		}
		role = created
		return nil
	})
	if err != nil {
		return nil, finalizeError(err, "failed to create role")
	}

	a.record(ctx, actor, ActivityEventRoleCreated, map[string]any{
		"role_id": role.ID.String(),
		"name":    role.Name,
	})
	return role, nil
}

// Edit renames the role. An unknown id changes nothing and reports
// ROLE_NOT_FOUND so callers can return to the listing.
func (a *RoleAdmin) Edit(ctx context.Context, actor ActorRef, roleID string, msg RoleMessage) (*Role, error) {
	id, err := parseRoleID(roleID)
	if err != nil {
		return nil, err
	}

	if verr := msg.Validate(); verr != nil {
		return nil, verr.
			WithTextCode(TextCodeInvalidRequest).
			WithCode(goerrors.CodeBadRequest)
	}

	var (
		role    *Role
		oldName string
	)
	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := a.repo.Roles().FindByIDTx(ctx, tx, id)
		if err != nil {
			return a.roleError(err, roleID)
		}
		oldName = existing.Name

		if existing.Name == strings.TrimSpace(msg.Name) {
			role = existing
			return nil
		}

		updated, err := a.repo.Roles().RenameTx(ctx, tx, existing, msg.Name)
		if err != nil {
			return err
		}
		role = updated
		return nil
	})
	if err != nil {
		return nil, finalizeError(err, "failed to edit role")
	}

	if oldName != role.Name {
		a.record(ctx, actor, ActivityEventRoleRenamed, map[string]any{
			"role_id":  role.ID.String(),
			"old_name": oldName,
			"name":     role.Name,
		})
	}
	return role, nil
}

// Delete removes the role and its memberships
func (a *RoleAdmin) Delete(ctx context.Context, actor ActorRef, roleID string) error {
	id, err := parseRoleID(roleID)
	if err != nil {
		return err
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := a.repo.Roles().DeleteTx(ctx, tx, id); err != nil {
			return a.roleError(err, roleID)
		}
		return nil
	})
	if err != nil {
		return finalizeError(err, "failed to delete role")
	}

	a.record(ctx, actor, ActivityEventRoleDeleted, map[string]any{
		"role_id": roleID,
	})
	return nil
}

// Assign adds identityID to the role, assigning twice is not an error
func (a *RoleAdmin) Assign(ctx context.Context, actor ActorRef, roleID, identityID string) error {
	return a.membership(ctx, actor, roleID, identityID, true)
}

// Unassign removes identityID from the role
func (a *RoleAdmin) Unassign(ctx context.Context, actor ActorRef, roleID, identityID string) error {
	return a.membership(ctx, actor, roleID, identityID, false)
}

func (a *RoleAdmin) membership(ctx context.Context, actor ActorRef, roleID, identityID string, assign bool) error {
	rid, err := parseRoleID(roleID)
	if err != nil {
		return err
	}

	uid, err := uuid.Parse(strings.TrimSpace(identityID))
	if err != nil {
		return ErrUserNotFound(identityID)
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := a.repo.Roles().FindByIDTx(ctx, tx, rid); err != nil {
			return a.roleError(err, roleID)
		}

		if _, err := a.repo.Identities().FindByIDTx(ctx, tx, uid); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrUserNotFound(identityID)
			}
			return err
		}

		if assign {
			return a.repo.Roles().AssignTx(ctx, tx, uid, rid)
		}
		return a.repo.Roles().UnassignTx(ctx, tx, uid, rid)
	})
	if err != nil {
		return finalizeError(err, "failed to update role membership")
	}

	eventType := ActivityEventRoleUnassigned
	if assign {
		eventType = ActivityEventRoleAssigned
	}

	a.record(ctx, actor, eventType, map[string]any{
		"role_id":     rid.String(),
		"identity_id": uid.String(),
	})
	return nil
}

func (a *RoleAdmin) roleError(err error, roleID string) error {
	if repository.IsRecordNotFound(err) {
		return ErrRoleNotFound(roleID)
	}
	return err
}

func (a *RoleAdmin) record(ctx context.Context, actor ActorRef, eventType ActivityEventType, metadata map[string]any) {
	if actor == (ActorRef{}) {
		actor = SystemActor
	}
	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		Metadata:   metadata,
		OccurredAt: a.now(),
	})
}

func parseRoleID(roleID string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(roleID))
	if err != nil {
		return uuid.Nil, ErrRoleNotFound(roleID)
	}
	return id, nil
}
