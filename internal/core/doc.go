// Package core generates Liquibase changelog data for data-quality rules.
//
// It holds all domain logic independent of transport. Web handlers, the
// rulegen CLI and tests drive it through [Service].
//
// # Workflows
//
//   - add-update: request rows name master rules by business rule id. Each is
//     merged with its master workbook row and resolved metadata ids into a
//     validation_rules row.
//   - configure: request rows attach an existing rule to a zone and source
//     owner as a des_validation_rules_extn row in the tenant schema.
//
// # Run
//
//  1. The request sheet is parsed and every tenant checked; nothing is read
//     from the store or written until the whole file is valid.
//  2. The master workbook sheets are merged into a [Catalog].
//  3. Rows are grouped by (tenant, ticket). A [Reconciler] decides each row's
//     [Outcome] and assigns its id, allocating only for new business keys.
//  4. Each group's batch is written by [Emitter] as a new Y_M_N version pair
//     (CSV plus loadUpdateData XML) and included in the dev manifest.
//
// Runs are bounded by [RunLimiter]. A run holds locks on every id scope and
// changelog directory it touches, so two runs in one process never allocate
// the same id or version. Separate processes are not coordinated.
//
// # Errors
//
// Store failures surface as [*StoreError] and write failures as [*FileError];
// both abort the run. [MapError] turns errors into coded user messages.
package core
