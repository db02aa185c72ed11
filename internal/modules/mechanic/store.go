// README: Mechanic store backed by PostgreSQL.
package mechanic

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roadcall/internal/types"
)

var ErrNotFound = errors.New("mechanic not found")

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Mechanic, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, is_available, services_offered, rating, created_at, updated_at
		FROM mechanics
		WHERE id = $1`, string(id))

	var m Mechanic
	err := row.Scan(&m.ID, &m.UserID, &m.IsAvailable, &m.ServicesOffered, &m.Rating, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PgStore) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE mechanics SET is_available = $1, updated_at = NOW() WHERE id = $2`,
		available, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}
