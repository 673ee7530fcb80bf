package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/shopx/api/internal/platform/auth"
)

// Action names an operation checked by the Authorizer.
type Action string

const (
	ActionTransition     Action = "orders:transition"
	ActionReadOrder      Action = "orders:read"
	ActionReadStatistics Action = "statistics:read"
)

const (
	relationOwner = "owner"
	relationOther = "other"
	relationAny   = "*"
)

// Requests are (role, relation to the order's seller, action).
const orderAccessModel = `
[request_definition]
r = role, rel, act

[policy_definition]
p = role, rel, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.role == p.role && (p.rel == "*" || r.rel == p.rel) && r.act == p.act
`

var defaultOrderPolicies = [][]string{
	{auth.RoleAdmin, relationAny, string(ActionTransition)},
	{auth.RoleAdmin, relationAny, string(ActionReadOrder)},
	{auth.RoleAdmin, relationAny, string(ActionReadStatistics)},
	{auth.RoleSystem, relationAny, string(ActionTransition)},
	{auth.RoleSystem, relationAny, string(ActionReadOrder)},
	{auth.RoleSeller, relationOwner, string(ActionTransition)},
	{auth.RoleSeller, relationOwner, string(ActionReadOrder)},
	{auth.RoleSeller, relationOwner, string(ActionReadStatistics)},
}

// CasbinAuthorizer lets sellers act on their own orders and admins on any.
type CasbinAuthorizer struct {
	enforcer *casbin.Enforcer
}

// NewCasbinAuthorizer builds the enforcer with the default policy set plus extra rules.
func NewCasbinAuthorizer(extra ...[]string) (*CasbinAuthorizer, error) {
	m, err := model.NewModelFromString(orderAccessModel)
	if err != nil {
		return nil, fmt.Errorf("authorizer: parse model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authorizer: init enforcer: %w", err)
	}
	policies := append(append([][]string{}, defaultOrderPolicies...), extra...)
	if _, err := enforcer.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("authorizer: load policies: %w", err)
	}
	return &CasbinAuthorizer{enforcer: enforcer}, nil
}

func (a *CasbinAuthorizer) Authorize(_ context.Context, actor *auth.Identity, action Action, sellerID string) error {
	if actor == nil {
		return fmt.Errorf("%w: no identity", ErrUnauthorized)
	}
	if a == nil || a.enforcer == nil {
		return errors.New("authorizer: not initialised")
	}

	relation := relationOther
	if owner := strings.TrimSpace(actor.SellerID); owner != "" && owner == strings.TrimSpace(sellerID) {
		relation = relationOwner
	}

	for _, role := range actor.Roles {
		allowed, err := a.enforcer.Enforce(strings.ToLower(strings.TrimSpace(role)), relation, string(action))
		if err != nil {
			return fmt.Errorf("authorizer: enforce: %w", err)
		}
		if allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not %s for seller %s", ErrUnauthorized, actor.UID, action, sellerID)
}
