// Package sqlite stores documents and schedules in one SQLite file using
// the pure Go modernc.org/sqlite driver.
//
// The default location is ~/.prdmachine/data/prdmachine.db. The schema
// comes from the numbered .up.sql files in migrations/, each applied once
// and recorded in schema_migrations.
//
// A state row and the version it points at are written in the same
// transaction, so a reader never sees a head without its version.
package sqlite
