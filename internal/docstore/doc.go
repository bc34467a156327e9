// Package docstore provides the document database behind the blog
// collection.
//
// Documents live in named collections and are addressed by an opaque id
// assigned on insert. The Store contract supports:
//   - reading a whole collection in natural (insertion) order
//   - reading one document, failing with ErrNotFound when absent
//   - querying ordered by one field with a limit
//   - field-level patches: overwrite, numeric increment, array union and
//     array remove
//   - conditional patches keyed on the document version (ErrVersionMismatch)
//
// Patches are applied atomically per document: the read, the patch and the
// write happen inside one transaction, so concurrent increments never lose
// updates.
//
// # Backends
//
//   - SQLite (OpenSQLite): WAL mode, one writer connection, data stored as
//     canonical JSON text.
//   - PostgreSQL (OpenPostgres): pgx connection pool, data stored as jsonb,
//     patch transactions lock the row with SELECT ... FOR UPDATE.
package docstore
