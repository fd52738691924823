// Package registry is the sole writer of durable sync state: series,
// their sources, and the sync tasks that drive chapters from a source into
// the backend catalog. Every mutation documented in the component design
// goes through here so status transitions stay serialized and consistent.
package registry

import (
	"database/sql"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}
