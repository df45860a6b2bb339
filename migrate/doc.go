// Package migrate is the migration engine. It reconciles the ordered list of
// scripts known to a Repository against the ledger each database reports
// through a Backend, computes the apply/revert actions needed to reach a
// target revision, and executes them across many databases in parallel.
//
// The engine understands neither SQL nor any other schema format, and it
// doesn't persist anything itself. Which migrations are applied is owned by
// the Backend; what a migration does is owned by the Script hooks.
//
// Revisions form a strict linear history: the repository order is the only
// valid migration path, preceded by the synthetic Initial revision that
// stands for "nothing applied".
package migrate
