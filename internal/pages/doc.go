// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package pages declares the SkillSwap route table.

Each page is a lazy route: its template is parsed the first time the page is
requested or preloaded, and the route's authorization requirement is enforced
by the guard before the page handler runs. Admin pages render inside the
admin outlet, so the Admin/SuperAdmin role check happens before a child's own
permission check.

Pages render a server-side shell; the client script fills in the data
through the endpoints named in each template's data-api attribute, and
warms up linked pages through POST /_preload/{name} on hover (data-preload).
*/
package pages
