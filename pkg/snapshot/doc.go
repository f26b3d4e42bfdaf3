// Package snapshot implements type-2 slowly changing dimension merges in
// the dbt snapshot dialect.
//
// A snapshot table accumulates the full history of a source relation. Every
// tracked record owns a chain of rows, each bounded by dbt_valid_from and
// dbt_valid_to; the chain's single open row (dbt_valid_to NULL, or a
// configured sentinel) is the record's current version. A run compares the
// source's rows against the open rows, versioning changed records, opening
// chains for new ones, and optionally closing or tombstoning records that
// disappeared.
//
// The package is deliberately pure: Merge reads two in-memory relations
// and produces a Plan of row mutations without touching a warehouse.
// Reading the relations and applying the plan live in internal/engine.
package snapshot
