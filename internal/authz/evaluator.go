// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

// Reasons attached to evaluation results.
const (
	ReasonCheckingAuthorization = "checking authorization"
	ReasonLoadingUserData       = "loading user data"
	ReasonNotAuthenticated      = "not authenticated"
	ReasonSessionExpired        = "session expired"
	ReasonLoadingProfile        = "loading profile"
	ReasonLoadingPermissions    = "loading permissions"
	ReasonCustomCheckFailed     = "custom check failed"
	ReasonMissingRole           = "missing role"
	ReasonMissingPermission     = "missing permission"
	ReasonInsufficient          = "insufficient roles or permissions"
)

// evaluation carries the inputs and the partial outcomes of one Evaluate call.
type evaluation struct {
	session Session
	perms   PermissionSet
	req     Requirement

	// nil until the corresponding step has run.
	rolesOK *bool
	permsOK *bool
}

// step inspects an evaluation and either decides it or passes.
type step struct {
	name   string
	decide func(*evaluation) (Result, bool)
}

// evaluationSteps is the priority order of Evaluate. The first step that
// decides wins. Changing the order changes authorization behavior.
var evaluationSteps = []step{
	{"session-loading", decideSessionLoading},
	{"unauthenticated", decideUnauthenticated},
	{"profile-missing", decideProfileMissing},
	{"permissions-loading", decidePermissionsLoading},
	{"auth-only", decideAuthOnly},
	{"custom-check", decideCustomCheck},
	{"role-check", decideRoles},
	{"permission-check", decidePermissions},
	{"no-requirements", decideNoRequirements},
	{"combined", decideCombined},
}

// Policy tunes evaluation of requirements that declare nothing.
type Policy struct {
	// FailClosed treats a public requirement as RequireAuth.
	FailClosed bool
}

// Evaluate decides whether session may open a route declaring req.
// It is pure, never panics and never logs.
func Evaluate(session Session, perms PermissionSet, req Requirement) Result {
	return Policy{}.Evaluate(session, perms, req)
}

// Evaluate is Evaluate under policy p.
func (p Policy) Evaluate(session Session, perms PermissionSet, req Requirement) Result {
	if p.FailClosed && req.IsPublic() {
		req.RequireAuth = true
	}
	ev := &evaluation{session: session, perms: perms, req: req}
	for _, s := range evaluationSteps {
		if res, ok := s.decide(ev); ok {
			return res
		}
	}
	// decideCombined always decides.
	return Result{Status: StatusUnauthorized, Reason: ReasonInsufficient}
}

func decideSessionLoading(ev *evaluation) (Result, bool) {
	if ev.session.IsLoading {
		return Result{Status: StatusLoading, Reason: ReasonCheckingAuthorization}, true
	}
	return Result{}, false
}

func decideUnauthenticated(ev *evaluation) (Result, bool) {
	if ev.session.IsAuthenticated {
		return Result{}, false
	}
	if ev.session.TokenPresent {
		// Silent re-authentication in progress.
		return Result{Status: StatusLoading, Reason: ReasonLoadingUserData}, true
	}
	return Result{Status: StatusUnauthenticated, Reason: ReasonNotAuthenticated}, true
}

func decideProfileMissing(ev *evaluation) (Result, bool) {
	if ev.session.User != nil {
		return Result{}, false
	}
	if !ev.session.TokenPresent {
		return Result{Status: StatusUnauthenticated, Reason: ReasonSessionExpired}, true
	}
	return Result{Status: StatusLoading, Reason: ReasonLoadingProfile}, true
}

func decidePermissionsLoading(ev *evaluation) (Result, bool) {
	if ev.perms.Loading && ev.req.NeedsPermissionCheck() {
		return Result{Status: StatusLoading, Reason: ReasonLoadingPermissions}, true
	}
	return Result{}, false
}

func decideAuthOnly(ev *evaluation) (Result, bool) {
	if ev.req.RequireAuth && !ev.req.NeedsPermissionCheck() {
		return Result{Status: StatusAuthenticated}, true
	}
	return Result{}, false
}

func decideCustomCheck(ev *evaluation) (Result, bool) {
	if ev.req.CustomCheck == nil {
		return Result{}, false
	}
	if !runCustomCheck(ev.req.CustomCheck, ev.perms) {
		return Result{Status: StatusUnauthorized, Reason: ReasonCustomCheckFailed}, true
	}
	if !ev.req.HasRequirements() {
		return Result{Status: StatusAuthenticated}, true
	}
	return Result{}, false
}

// runCustomCheck treats a panicking check as a failed one.
func runCustomCheck(check CustomCheck, perms PermissionSet) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return check(perms)
}

func decideRoles(ev *evaluation) (Result, bool) {
	if ev.req.Roles.IsEmpty() {
		return Result{}, false
	}
	ok := matches(ev.perms.Roles, ev.req.Roles, ev.req.RequireAll)
	ev.rolesOK = &ok
	if ev.req.RequireAll && !ok {
		return Result{
			Status:  StatusUnauthorized,
			Reason:  ReasonMissingRole,
			Details: &Details{Required: ev.req.Roles.Values(), User: ev.perms.Roles.Values()},
		}, true
	}
	return Result{}, false
}

func decidePermissions(ev *evaluation) (Result, bool) {
	if ev.req.Permissions.IsEmpty() {
		return Result{}, false
	}
	ok := matches(ev.perms.Permissions, ev.req.Permissions, ev.req.RequireAll)
	ev.permsOK = &ok
	if ev.req.RequireAll && !ok {
		return Result{
			Status:  StatusUnauthorized,
			Reason:  ReasonMissingPermission,
			Details: &Details{Required: ev.req.Permissions.Values(), User: ev.perms.Permissions.Values()},
		}, true
	}
	return Result{}, false
}

func decideNoRequirements(ev *evaluation) (Result, bool) {
	if !ev.req.HasRequirements() {
		return Result{Status: StatusAuthenticated}, true
	}
	return Result{}, false
}

// decideCombined joins the dimensions that were checked: AND under
// RequireAll, OR otherwise.
func decideCombined(ev *evaluation) (Result, bool) {
	var checked []bool
	if ev.rolesOK != nil {
		checked = append(checked, *ev.rolesOK)
	}
	if ev.permsOK != nil {
		checked = append(checked, *ev.permsOK)
	}

	allowed := ev.req.RequireAll
	for _, ok := range checked {
		if ev.req.RequireAll {
			allowed = allowed && ok
		} else {
			allowed = allowed || ok
		}
	}
	if allowed {
		return Result{Status: StatusAuthenticated}, true
	}
	return Result{
		Status: StatusUnauthorized,
		Reason: ReasonInsufficient,
		Details: &Details{
			Required: append(ev.req.Roles.Values(), ev.req.Permissions.Values()...),
			User:     append(ev.perms.Roles.Values(), ev.perms.Permissions.Values()...),
		},
	}, true
}

func matches(held, required Set, all bool) bool {
	if all {
		return held.HasAll(required)
	}
	return held.HasAny(required)
}

// EvaluationOrder returns the step names of Evaluate in priority order.
func EvaluationOrder() []string {
	names := make([]string, len(evaluationSteps))
	for i, s := range evaluationSteps {
		names[i] = s.name
	}
	return names
}
