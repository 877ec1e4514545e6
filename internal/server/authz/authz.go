// Package authz decides which roles may run which payroll actions. The
// model and default policy are compiled in; NewAuthorizer accepts others for
// deployments that need a different split.
package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
)

// Objects.
const (
	PayPeriod = "pay_period"
	TaxYear   = "tax_year"
	Ytd       = "ytd"
)

// Actions.
const (
	Read    = "read"
	Write   = "write"
	Approve = "approve"
	Commit  = "commit"
	Sync    = "sync"
)

const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

const DefaultPolicy = `
p, payroll_admin, *, *
p, viewer, pay_period, read
p, viewer, tax_year, read
p, viewer, ytd, read
p, payroll_approver, pay_period, approve
p, payroll_approver, pay_period, commit
g, payroll_approver, viewer
`

type Authorizer struct {
	enforcer *casbin.Enforcer
}

func NewAuthorizer(modelText, policy string) (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(policy))
	if err != nil {
		return nil, fmt.Errorf("authz policy: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

func NewDefaultAuthorizer() (*Authorizer, error) {
	return NewAuthorizer(DefaultModel, DefaultPolicy)
}

// Authorize returns common.ErrForbidden unless a's role may perform act on
// obj.
func (a *Authorizer) Authorize(who actor.Actor, obj, act string) error {
	ok, err := a.enforcer.Enforce(string(who.Role), obj, act)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrForbidden
	}
	return nil
}
