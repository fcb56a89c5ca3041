// Package audit records security-relevant events: logins, logouts, staff and
// role changes, permission reseeds and requests that reached into another
// tenant.
//
// Callers never see why a lookup failed; a cross-tenant miss and a missing
// row both answer 404. The audit trail is where the two are told apart.
//
// Events are written synchronously through a Logger. PostgresStore persists
// them to the audit_events table and serves searches; LogLogger mirrors them
// to the structured application log; MultiLogger fans out to several sinks.
package audit
