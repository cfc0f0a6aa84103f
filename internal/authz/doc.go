// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

// Package authz decides whether a session may open a SkillSwap route.
//
// The decision is made by Evaluate, a pure function of three inputs:
//
//	Session        who is logged in (from internal/auth)
//	PermissionSet  the user's roles and permissions (from a PermissionSource)
//	Requirement    what the route declares
//
// and yields one of four statuses: LOADING, AUTHENTICATED, UNAUTHENTICATED,
// UNAUTHORIZED. Evaluate walks evaluationSteps in order and the first step
// that decides wins:
//
//	1  session loading                  LOADING "checking authorization"
//	2  not authenticated                LOADING "loading user data" while a token
//	                                    is stored, else UNAUTHENTICATED
//	3  authenticated, profile missing   UNAUTHENTICATED "session expired" without
//	                                    a token, else LOADING "loading profile"
//	4  permissions loading              LOADING "loading permissions"
//	5  auth-only route                  AUTHENTICATED
//	6  custom check (veto)              UNAUTHORIZED "custom check failed"
//	7  roles                            UNAUTHORIZED "missing role" under RequireAll
//	8  permissions                      UNAUTHORIZED "missing permission" under RequireAll
//	9  nothing declared                 AUTHENTICATED
//	10 roles OR permissions (ANY)       AUTHENTICATED or UNAUTHORIZED
//
// A PermissionSet that is still loading is never treated as a denial.
//
// # Requirements
//
// The zero Requirement is public. Requirement.Validate rejects blank names so
// that a typo cannot quietly make a route public; route registration calls it.
//
//	authz.RequireAuth
//	authz.Roles("Admin", "SuperAdmin")
//	authz.Requirement{
//	    Roles:       authz.NewSet("SuperAdmin"),
//	    Permissions: authz.NewSet("system:metrics"),
//	    RequireAll:  true,
//	}
//
// # Permission sources
//
// PermissionResolver caches one lookup per user through a Resolver. Two
// resolvers are provided: PolicyResolver (Casbin RBAC over model.conf and
// policy.csv) and the SkillSwap API client in internal/backend.
//
// # Audit
//
// AuditLogger records guard decisions asynchronously. Denials are written at
// warn level; required-vs-held details only when IncludeDetails is set.
package authz
