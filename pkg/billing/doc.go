// Package billing manages restaurant subscriptions.
//
// Every restaurant starts on a FREE/ACTIVE subscription with no billing period.
// Paid tiers (BASIC, PROFESSIONAL) get a 30 day period starting at creation or
// at the moment the tier changes. Payment provider integration is not part of
// this package; the external customer and subscription ids are opaque
// references stored for whoever reconciles them.
//
// A restaurant holds at most one live subscription. Creating a new ACTIVE or
// TRIALING subscription cancels the previous live one in the same transaction.
package billing
