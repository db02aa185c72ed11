// README: Offer store backed by PostgreSQL; accept path is one transaction.
package offer

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roadcall/internal/modules/request"
	"roadcall/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const offerColumns = `
	id, mechanic_id, request_id, price_amount, price_currency, note,
	lat, lng, status, expires_at, created_at`

func (s *PgStore) Create(ctx context.Context, o *Offer) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO service_offers (
			id, mechanic_id, request_id, price_amount, price_currency, note,
			lat, lng, status, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(o.ID),
		string(o.MechanicID),
		string(o.ServiceRequestID),
		o.Price.Amount,
		o.Price.Currency,
		o.Note,
		o.Location.Latitude, o.Location.Longitude,
		string(o.Status),
		o.ExpiresAt,
		o.CreatedAt,
	)
	return err
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Offer, error) {
	row := s.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM service_offers WHERE id = $1`, string(id))
	return scanOffer(row)
}

// LatestPending orders newest-first explicitly. The expiry filter lives in
// the query so functionally-expired rows are never returned as actionable,
// whatever their persisted status says.
func (s *PgStore) LatestPending(ctx context.Context, requestID types.ID, now time.Time) (*Offer, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM service_offers
		WHERE request_id = $1 AND status = 'PENDING' AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`, string(requestID), now)
	o, err := scanOffer(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoPendingOffer
	}
	return o, err
}

func (s *PgStore) AcceptedFor(ctx context.Context, requestID types.ID) (*Offer, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM service_offers
		WHERE request_id = $1 AND status = 'ACCEPTED'
		ORDER BY created_at DESC
		LIMIT 1`, string(requestID))
	return scanOffer(row)
}

// Accept performs the tri-effect atomically: mark the winner ACCEPTED,
// advance the request to ACCEPTED with the mechanic set, purge every other
// PENDING offer for the request. The request update is a CAS on
// status/status_version, so a concurrent resolution makes the whole
// transaction roll back and Accept report false.
func (s *PgStore) Accept(ctx context.Context, offerID, requestID, mechanicID types.ID, reqVersion int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE service_requests
		SET status = 'ACCEPTED',
		    status_version = status_version + 1,
		    mechanic_id = $1,
		    updated_at = NOW()
		WHERE id = $2 AND status = 'REQUESTED' AND status_version = $3`,
		string(mechanicID), string(requestID), reqVersion,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE service_offers SET status = 'ACCEPTED'
		WHERE id = $1 AND status = 'PENDING'`, string(offerID))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if _, err = tx.Exec(ctx, `
		UPDATE service_offers SET status = 'REJECTED'
		WHERE request_id = $1 AND status = 'PENDING' AND id <> $2`,
		string(requestID), string(offerID),
	); err != nil {
		return false, err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO request_events (request_id, from_status, to_status, actor_type, actor_id, created_at)
		VALUES ($1, 'REQUESTED', 'ACCEPTED', 'client', NULL, NOW())`,
		string(requestID),
	); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Decline marks the offer DECLINED and rolls the request back to REQUESTED
// with the mechanic cleared, leaving it open for further bids.
func (s *PgStore) Decline(ctx context.Context, offerID, requestID types.ID, reqVersion int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE service_offers SET status = 'DECLINED'
		WHERE id = $1 AND status = 'PENDING'`, string(offerID))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE service_requests
		SET status = 'REQUESTED',
		    status_version = status_version + 1,
		    mechanic_id = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('REQUESTED','ACCEPTED') AND status_version = $2`,
		string(requestID), reqVersion,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyUpcharge commits an additional-service capture: the pending offer is
// marked ACCEPTED and the request's payment fields (plus the status advance,
// when there is one) land in the same transaction, CAS-guarded on
// (id, status_version). A false return means the transaction rolled back and
// the offer is still pending, so a redelivered event can retry cleanly.
func (s *PgStore) ApplyUpcharge(ctx context.Context, offerID types.ID, r *request.ServiceRequest, from request.Status, fromVersion int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE service_offers SET status = 'ACCEPTED'
		WHERE id = $1 AND status = 'PENDING'`, string(offerID))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE service_requests
		SET status = $1,
		    status_version = status_version + 1,
		    second_transaction_id = $2,
		    total_amount = $3,
		    currency = $4,
		    updated_at = $5
		WHERE id = $6 AND status_version = $7`,
		string(r.Status),
		r.SecondTransactionID,
		r.TotalAmount.Amount,
		r.TotalAmount.Currency,
		r.UpdatedAt,
		string(r.ID),
		fromVersion,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if r.Status != from {
		if _, err = tx.Exec(ctx, `
			INSERT INTO request_events (request_id, from_status, to_status, actor_type, actor_id, created_at)
			VALUES ($1, $2, $3, 'payment', NULL, $4)`,
			string(r.ID), string(from), string(r.Status), r.UpdatedAt,
		); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PgStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE service_offers SET status = 'EXPIRED'
		WHERE status = 'PENDING' AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) ListByRequest(ctx context.Context, requestID types.ID) ([]*Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+offerColumns+`
		FROM service_offers
		WHERE request_id = $1
		ORDER BY created_at DESC`, string(requestID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (*Offer, error) {
	var o Offer
	err := row.Scan(
		&o.ID, &o.MechanicID, &o.ServiceRequestID,
		&o.Price.Amount, &o.Price.Currency, &o.Note,
		&o.Location.Latitude, &o.Location.Longitude,
		&o.Status, &o.ExpiresAt, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
