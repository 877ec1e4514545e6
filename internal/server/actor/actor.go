// Package actor carries the authenticated user and company through every
// payroll operation. Services take an Actor argument explicitly; the context
// helpers exist only for the HTTP middleware hand-off.
package actor

import (
	"context"

	"github.com/dmitrijs2005/paykeeper/internal/common"
)

type Role string

const (
	RoleAdmin    Role = "payroll_admin"
	RoleApprover Role = "payroll_approver"
	RoleViewer   Role = "viewer"
)

type Actor struct {
	UserID    string
	CompanyID string
	Role      Role
}

// systemUserID identifies work done by the server itself, such as
// background tax sync.
const systemUserID = "system"

// System returns the actor used by background jobs for company companyID.
func System(companyID string) Actor {
	return Actor{UserID: systemUserID, CompanyID: companyID, Role: RoleAdmin}
}

func (a Actor) IsSystem() bool {
	return a.UserID == systemUserID
}

// Validate rejects an actor without a user or company.
func (a Actor) Validate() error {
	if a.UserID == "" || a.CompanyID == "" {
		return common.ErrUnauthorized
	}
	return nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
