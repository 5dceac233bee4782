// Package postgres implements the execution journal on PostgreSQL through pgx.
package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/ctpgate/internal/infra/persistence"
)

// Store exposes PostgreSQL-backed repositories.
type Store struct {
	*persistence.Store
	journal *JournalStore
}

// New constructs a PostgreSQL persistence store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Store: persistence.NewStore(pool), journal: NewJournalStore(pool)}
}

// Journal returns the execution journal repository.
func (s *Store) Journal() *JournalStore {
	return s.journal
}
