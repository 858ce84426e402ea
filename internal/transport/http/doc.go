// Package http exposes the portal's REST API: license issuance, validation
// and revocation, the partner/tenant directory, and session token exchange.
// Handlers translate between HTTP and the domain services; they hold no
// business logic of their own.
package http
