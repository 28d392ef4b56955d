// Package rbac maps request roles to the permissions the route guards check.
// The policy is a fixed casbin RBAC model seeded at startup; roles come from
// the upstream gateway, never from local accounts.
package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Permission names used by the route guards.
const (
	PermIncidentsReport  = "incidents.report"
	PermIncidentsView    = "incidents.view"
	PermIncidentsUpdate  = "incidents.update"
	PermCasesView        = "cases.view"
	PermCasesInvestigate = "cases.investigate"
	PermCasesApprove     = "cases.approve"
	PermCasesAppeal      = "cases.appeal"
	PermCasesReview      = "cases.review"
	PermLogsView         = "logs.view"
)

// Role names the gateway may assert.
const (
	RoleReporter     = "reporter"
	RoleInvestigator = "investigator"
	RoleApprover     = "approver"
	RoleReported     = "reported"
	RoleAdmin        = "admin"
)

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

type Policy struct {
	enforcer *casbin.Enforcer
}

// NewPolicy builds the fixed role→permission table.
func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	policies := [][]string{
		{RoleReporter, PermIncidentsReport},
		{RoleReporter, PermIncidentsView},
		{RoleReporter, PermCasesView},
		{RoleInvestigator, PermIncidentsView},
		{RoleInvestigator, PermCasesView},
		{RoleInvestigator, PermCasesInvestigate},
		{RoleApprover, PermIncidentsView},
		{RoleApprover, PermIncidentsUpdate},
		{RoleApprover, PermCasesView},
		{RoleApprover, PermCasesApprove},
		{RoleApprover, PermCasesReview},
		{RoleReported, PermCasesView},
		{RoleReported, PermCasesAppeal},
		{RoleAdmin, PermLogsView},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1]); err != nil {
			return nil, fmt.Errorf("rbac policy %v: %w", p, err)
		}
	}
	// admin inherits every operational role.
	for _, role := range []string{RoleReporter, RoleInvestigator, RoleApprover, RoleReported} {
		if _, err := e.AddGroupingPolicy(RoleAdmin, role); err != nil {
			return nil, fmt.Errorf("rbac grouping %s: %w", role, err)
		}
	}
	return &Policy{enforcer: e}, nil
}

// Allowed reports whether role carries perm, directly or by inheritance.
func (p *Policy) Allowed(role, perm string) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	ok, err := p.enforcer.Enforce(role, perm)
	return err == nil && ok
}
