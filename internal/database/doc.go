// Package database opens the PostgreSQL pool backing the push journal.
package database
