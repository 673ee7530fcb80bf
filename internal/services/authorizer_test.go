package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopx/api/internal/platform/auth"
)

func TestCasbinAuthorizer(t *testing.T) {
	authorizer, err := NewCasbinAuthorizer()
	if err != nil {
		t.Fatalf("NewCasbinAuthorizer: %v", err)
	}
	system := auth.SystemIdentity("job")
	noRoles := &auth.Identity{UID: "x", SellerID: "seller-1"}

	cases := []struct {
		name    string
		actor   *auth.Identity
		action  Action
		seller  string
		allowed bool
	}{
		{name: "owner transitions", actor: sellerOne, action: ActionTransition, seller: "seller-1", allowed: true},
		{name: "owner reads statistics", actor: sellerOne, action: ActionReadStatistics, seller: "seller-1", allowed: true},
		{name: "other seller transition", actor: sellerTwo, action: ActionTransition, seller: "seller-1"},
		{name: "other seller statistics", actor: sellerTwo, action: ActionReadStatistics, seller: "seller-1"},
		{name: "admin any seller", actor: adminActor, action: ActionTransition, seller: "seller-9", allowed: true},
		{name: "admin statistics", actor: adminActor, action: ActionReadStatistics, seller: "seller-9", allowed: true},
		{name: "system transitions", actor: system, action: ActionTransition, seller: "seller-1", allowed: true},
		{name: "system cannot read statistics", actor: system, action: ActionReadStatistics, seller: "seller-1"},
		{name: "no roles", actor: noRoles, action: ActionReadOrder, seller: "seller-1"},
		{name: "nil identity", actor: nil, action: ActionReadOrder, seller: "seller-1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := authorizer.Authorize(context.Background(), tc.actor, tc.action, tc.seller)
			if tc.allowed && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tc.allowed && !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestCasbinAuthorizerExtraPolicies(t *testing.T) {
	authorizer, err := NewCasbinAuthorizer([]string{"analyst", "*", string(ActionReadStatistics)})
	if err != nil {
		t.Fatalf("NewCasbinAuthorizer: %v", err)
	}
	analyst := &auth.Identity{UID: "a", Roles: []string{"Analyst"}}
	if err := authorizer.Authorize(context.Background(), analyst, ActionReadStatistics, "seller-1"); err != nil {
		t.Fatalf("expected analyst to read statistics, got %v", err)
	}
	if err := authorizer.Authorize(context.Background(), analyst, ActionTransition, "seller-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected analyst transition denied, got %v", err)
	}
}
