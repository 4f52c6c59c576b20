// Package journal records pushed commands in PostgreSQL.
//
// The hub calls Record for every targeted push. Entries are batched in
// memory and written with pgx batches on a size or interval trigger. The
// journal is append-only; a failed batch is logged and dropped.
package journal
