// Package stores persists build history in SQLite: one row per build and
// the classified output lines of each build. Schema changes are applied
// with embedded golang-migrate migrations.
package stores
