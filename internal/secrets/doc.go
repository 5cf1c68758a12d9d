// SPDX-License-Identifier: MPL-2.0

// Package secrets resolves dotted secret paths for steps.
//
// A path such as "db.credentials.password" names the secret "db"; the rest
// indexes into the secret's JSON value (numeric segments index arrays).
// Secrets come from local files during development or from AWS Secrets
// Manager. A miss is never fatal: Resolve reports it as absent and logs why.
package secrets
