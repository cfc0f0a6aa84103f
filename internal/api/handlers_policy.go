// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/guard"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/validation"
	"github.com/tomtom215/skillswap-gateway/internal/views"
)

// PolicyRouteName names the policy administration API in guard decisions.
const PolicyRouteName = "policy-admin"

// PolicyAdminRequirement guards the policy API: super administrators with
// two-factor authentication turned on.
var PolicyAdminRequirement = authz.Requirement{
	Roles:       authz.NewSet("SuperAdmin"),
	CustomCheck: authz.RequireTwoFactor,
}

const maxPolicyBody = 4 << 10

type roleAssignment struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Role   string `json:"role" validate:"required,max=64"`
}

type permissionGrant struct {
	Role       string `json:"role" validate:"required,max=64"`
	Permission string `json:"permission" validate:"required,max=128"`
}

// policyChange is the body of a successful mutation.
type policyChange struct {
	Changed bool `json:"changed"`
}

// policyRoutes registers the Casbin policy administration endpoints.
//
//	GET  /users/{id}/grants
//	POST /roles/assign, /roles/revoke
//	POST /permissions/grant, /permissions/revoke
//	POST /reload
func (router *Router) policyRoutes(r chi.Router) {
	r.Get("/users/{id}/grants", router.UserGrants)
	r.Post("/roles/assign", router.AssignRole)
	r.Post("/roles/revoke", router.RevokeRole)
	r.Post("/permissions/grant", router.GrantPermission)
	r.Post("/permissions/revoke", router.RevokePermission)
	r.Post("/reload", router.ReloadPolicy)
}

// UserGrants returns the roles and permissions the policy gives a user.
func (router *Router) UserGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := router.deps.Policy.Resolve(r.Context(), chi.URLParam(r, "id"), nil)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to resolve grants")
		views.WriteInternalError(w, r, "Failed to resolve grants")
		return
	}
	views.WriteSuccess(w, r, grants)
}

// AssignRole gives a user a role.
func (router *Router) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req roleAssignment
	if !decodePolicyRequest(w, r, &req) || !validRole(w, r, req.Role) {
		return
	}
	changed, err := router.deps.Policy.AddRoleForUser(req.UserID, req.Role)
	router.finishPolicyChange(w, r, "policy_assign_role", req.UserID, changed, err)
}

// RevokeRole takes a role from a user.
func (router *Router) RevokeRole(w http.ResponseWriter, r *http.Request) {
	var req roleAssignment
	if !decodePolicyRequest(w, r, &req) || !validRole(w, r, req.Role) {
		return
	}
	changed, err := router.deps.Policy.DeleteRoleForUser(req.UserID, req.Role)
	router.finishPolicyChange(w, r, "policy_revoke_role", req.UserID, changed, err)
}

// GrantPermission gives a role a permission.
func (router *Router) GrantPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionGrant
	if !decodePolicyRequest(w, r, &req) || !validGrant(w, r, req) {
		return
	}
	changed, err := router.deps.Policy.GrantPermission(req.Role, req.Permission)
	router.finishPolicyChange(w, r, "policy_grant_permission", "", changed, err)
}

// RevokePermission takes a permission from a role.
func (router *Router) RevokePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionGrant
	if !decodePolicyRequest(w, r, &req) || !validGrant(w, r, req) {
		return
	}
	changed, err := router.deps.Policy.RevokePermission(req.Role, req.Permission)
	router.finishPolicyChange(w, r, "policy_revoke_permission", "", changed, err)
}

// ReloadPolicy re-reads the policy file.
func (router *Router) ReloadPolicy(w http.ResponseWriter, r *http.Request) {
	err := router.deps.Policy.LoadPolicy()
	if errors.Is(err, authz.ErrNoPolicyFile) {
		views.WriteError(w, r, http.StatusConflict, views.ErrCodeBadRequest, "The gateway runs on the built-in policy")
		return
	}
	router.finishPolicyChange(w, r, "policy_reload", "", err == nil, err)
}

func (router *Router) finishPolicyChange(w http.ResponseWriter, r *http.Request, event, target string, changed bool, err error) {
	ev := &logging.SecurityEvent{
		Event:     event,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Success:   err == nil,
	}
	if actor := guard.UserFromContext(r.Context()); actor != nil {
		ev.UserID = actor.ID
	}
	if err != nil {
		ev.Error = err.Error()
	}
	router.security.LogEvent(ev)

	if err != nil {
		views.WriteInternalError(w, r, "Policy update failed")
		return
	}
	if target != "" {
		logging.Ctx(r.Context()).Info().
			Str("event", event).
			Str("target_user", logging.SanitizeUserID(target)).
			Bool("changed", changed).
			Msg("Role assignment updated")
	}
	views.WriteSuccess(w, r, policyChange{Changed: changed})
}

func decodePolicyRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxPolicyBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		views.WriteBadRequest(w, r, "invalid request body")
		return false
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		views.WriteErrorWithDetails(w, r, http.StatusBadRequest, views.ErrCodeValidationFailed, verr.Error(), verr.Fields())
		return false
	}
	return true
}

// validRole rejects names the policy could never match in a requirement.
func validRole(w http.ResponseWriter, r *http.Request, role string) bool {
	if err := (authz.Requirement{Roles: authz.NewSet(role)}).Validate(); err != nil {
		views.WriteBadRequest(w, r, err.Error())
		return false
	}
	return true
}

func validGrant(w http.ResponseWriter, r *http.Request, g permissionGrant) bool {
	req := authz.Requirement{Roles: authz.NewSet(g.Role), Permissions: authz.NewSet(g.Permission)}
	if err := req.Validate(); err != nil {
		views.WriteBadRequest(w, r, err.Error())
		return false
	}
	return true
}
