// README: Location store backed by Redis GEO and Postgres snapshots.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"roadcall/internal/types"
)

const geoKey = "roadcall:geo:last"

type RedisPgStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *RedisPgStore {
	return &RedisPgStore{db: db, redis: redis}
}

func (s *RedisPgStore) LastKnown(ctx context.Context, subjectID types.ID) (types.Coordinates, bool, error) {
	pos, err := s.redis.GeoPos(ctx, geoKey, string(subjectID)).Result()
	if err != nil {
		return types.Coordinates{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return types.Coordinates{}, false, nil
	}
	return types.Coordinates{Latitude: pos[0].Latitude, Longitude: pos[0].Longitude}, true, nil
}

func (s *RedisPgStore) SetLastKnown(ctx context.Context, subjectID types.ID, pos types.Coordinates) error {
	return s.redis.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(subjectID),
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
	}).Err()
}

func (s *RedisPgStore) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO location_snapshots (subject_id, kind, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(snap.SubjectID),
		snap.Kind,
		snap.Position.Latitude,
		snap.Position.Longitude,
		snap.RecordedAt,
	)
	return err
}
