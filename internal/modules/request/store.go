// README: Request store backed by PostgreSQL with optimistic status versioning.
package request

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roadcall/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const requestColumns = `
	id, client_id, mechanic_id, service_type, status, status_version,
	lat, lng, total_amount, currency,
	first_transaction_id, second_transaction_id, payment_hold_id,
	arrival_code, completion_code, start_time, created_at, updated_at`

func (s *PgStore) Create(ctx context.Context, r *ServiceRequest) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO service_requests (
			id, client_id, mechanic_id, service_type, status, status_version,
			lat, lng, total_amount, currency,
			first_transaction_id, second_transaction_id, payment_hold_id,
			arrival_code, completion_code, start_time, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17, $18
		)`,
		string(r.ID),
		string(r.ClientID),
		idPtr(r.MechanicID),
		string(r.ServiceType),
		string(r.Status),
		r.StatusVersion,
		r.Location.Latitude, r.Location.Longitude,
		r.TotalAmount.Amount, r.TotalAmount.Currency,
		r.FirstTransactionID, r.SecondTransactionID, r.PaymentHoldID,
		r.ArrivalCode, r.CompletionCode,
		r.StartTime, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*ServiceRequest, error) {
	row := s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, string(id))
	return scanRequest(row)
}

// Update writes every mutable field conditionally on the version the caller
// read. Returning (false, nil) means a concurrent writer won the race.
func (s *PgStore) Update(ctx context.Context, r *ServiceRequest, fromVersion int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE service_requests
		SET status = $1,
		    status_version = status_version + 1,
		    mechanic_id = $2,
		    total_amount = $3,
		    currency = $4,
		    first_transaction_id = $5,
		    second_transaction_id = $6,
		    payment_hold_id = $7,
		    arrival_code = $8,
		    completion_code = $9,
		    updated_at = $10
		WHERE id = $11 AND status_version = $12`,
		string(r.Status),
		idPtr(r.MechanicID),
		r.TotalAmount.Amount,
		r.TotalAmount.Currency,
		r.FirstTransactionID,
		r.SecondTransactionID,
		r.PaymentHoldID,
		r.ArrivalCode,
		r.CompletionCode,
		r.UpdatedAt,
		string(r.ID),
		fromVersion,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO request_events (
			request_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RequestID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *PgStore) ListActiveByClient(ctx context.Context, clientID types.ID) ([]*ServiceRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM service_requests
		WHERE client_id = $1 AND status NOT IN ('COMPLETED','CANCELLED')
		ORDER BY created_at DESC`, string(clientID))
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

func (s *PgStore) ListActiveByMechanic(ctx context.Context, mechanicID types.ID) ([]*ServiceRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM service_requests
		WHERE mechanic_id = $1 AND status NOT IN ('COMPLETED','CANCELLED')
		ORDER BY created_at DESC`, string(mechanicID))
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

func (s *PgStore) ListOpen(ctx context.Context) ([]*ServiceRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM service_requests
		WHERE status = 'REQUESTED'
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

func (s *PgStore) ListDueBooked(ctx context.Context, now time.Time) ([]*ServiceRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM service_requests
		WHERE status = 'BOOKED' AND start_time <= $1
		ORDER BY start_time`, now)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*ServiceRequest, error) {
	var r ServiceRequest
	var mechanicID, firstTx, secondTx, holdID, arrivalCode, completionCode *string
	var startTime *time.Time

	err := row.Scan(
		&r.ID, &r.ClientID, &mechanicID, &r.ServiceType, &r.Status, &r.StatusVersion,
		&r.Location.Latitude, &r.Location.Longitude,
		&r.TotalAmount.Amount, &r.TotalAmount.Currency,
		&firstTx, &secondTx, &holdID,
		&arrivalCode, &completionCode,
		&startTime, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if mechanicID != nil {
		m := types.ID(*mechanicID)
		r.MechanicID = &m
	}
	r.FirstTransactionID = firstTx
	r.SecondTransactionID = secondTx
	r.PaymentHoldID = holdID
	r.ArrivalCode = arrivalCode
	r.CompletionCode = completionCode
	r.StartTime = startTime
	return &r, nil
}

func scanRequests(rows pgx.Rows) ([]*ServiceRequest, error) {
	defer rows.Close()
	var out []*ServiceRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
