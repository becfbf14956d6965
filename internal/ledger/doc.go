// Package ledger records pipeline runs in a SQLite database under the state
// directory. It stores run outcomes only, never classifier results.
package ledger
