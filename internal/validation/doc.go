// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package validation provides struct validation using go-playground/validator v10.

A single validator instance is shared by the login handlers and the
configuration loader. Field errors are reported under the field's json,
koanf or form name so messages match what the client or operator wrote.

Custom validators:
  - otp: a one-time code of 6 to 8 digits

Example:

	type loginRequest struct {
	    Email    string `json:"email" validate:"required,email"`
	    Password string `json:"password" validate:"required,max=256"`
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
	    views.WriteErrorWithDetails(w, r, http.StatusBadRequest,
	        views.ErrCodeValidationFailed, verr.Error(), verr.Fields())
	    return
	}
*/
package validation
