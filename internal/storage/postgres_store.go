package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateRequest(ctx context.Context, r *models.Request) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO requests(id, rider_id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			passengers, luggage, max_detour_min, status, pool_id, rating, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.RiderID, r.Pickup.Lat, r.Pickup.Lon, r.Dropoff.Lat, r.Dropoff.Lon,
		r.Passengers, r.Luggage, r.MaxDetourMin, string(r.Status), r.PoolID, r.Rating,
		r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, rider_id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			passengers, luggage, max_detour_min, status, pool_id, rating, created_at, updated_at
		FROM requests WHERE id=$1`, id)
	return scanRequest(row)
}

func (p *PostgresStore) ListRequestsByStatus(ctx context.Context, status models.RequestStatus, limit, offset int) ([]*models.Request, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, rider_id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			passengers, luggage, max_detour_min, status, pool_id, rating, created_at, updated_at
		FROM requests WHERE status=$1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TransitionRequest relies on the guarded UPDATE: the status predicate makes
// the transition all-or-nothing without a separate lock. An edge outside the
// lifecycle table is a caller bug, rejected before touching the database.
func (p *PostgresStore) TransitionRequest(ctx context.Context, id string, from, to models.RequestStatus, poolID *string) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, fmt.Errorf("transition %s to %s not allowed", from, to)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE requests SET status=$1, pool_id=$2, updated_at=$3
		WHERE id=$4 AND status=$5`,
		string(to), poolID, time.Now().UTC(), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) SetRating(ctx context.Context, id string, rating int) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE requests SET rating=$1, updated_at=$2
		WHERE id=$3 AND status=$4`,
		rating, time.Now().UTC(), id, string(models.StatusCompleted))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) CreatePool(ctx context.Context, pool *models.Pool) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pools(id, member_ids, passengers, luggage, pickup_lat, pickup_lon,
			dropoff_lat, dropoff_lon, distance_km, duration_min, fare, per_member, status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		pool.ID, pq.Array(pool.MemberIDs), pool.Passengers, pool.Luggage,
		pool.Pickup.Lat, pool.Pickup.Lon, pool.Dropoff.Lat, pool.Dropoff.Lon,
		pool.DistanceKm, pool.DurationMin, pool.Fare, pool.PerMember,
		string(pool.Status), pool.CreatedAt)
	return err
}

func (p *PostgresStore) GetPool(ctx context.Context, id string) (*models.Pool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, member_ids, passengers, luggage, pickup_lat, pickup_lon,
			dropoff_lat, dropoff_lon, distance_km, duration_min, fare, per_member, status, created_at
		FROM pools WHERE id=$1`, id)
	return scanPool(row)
}

func (p *PostgresStore) ListPoolsByStatus(ctx context.Context, status models.PoolStatus, limit, offset int) ([]*models.Pool, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, member_ids, passengers, luggage, pickup_lat, pickup_lon,
			dropoff_lat, dropoff_lon, distance_km, duration_min, fare, per_member, status, created_at
		FROM pools WHERE status=$1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdatePoolStatus(ctx context.Context, id string, from, to models.PoolStatus) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE pools SET status=$1 WHERE id=$2 AND status=$3`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*models.Request, error) {
	var r models.Request
	var status string
	var poolID sql.NullString
	var rating sql.NullInt64
	err := s.Scan(&r.ID, &r.RiderID, &r.Pickup.Lat, &r.Pickup.Lon, &r.Dropoff.Lat, &r.Dropoff.Lon,
		&r.Passengers, &r.Luggage, &r.MaxDetourMin, &status, &poolID, &rating,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = models.RequestStatus(status)
	if poolID.Valid {
		r.PoolID = &poolID.String
	}
	if rating.Valid {
		v := int(rating.Int64)
		r.Rating = &v
	}
	return &r, nil
}

func scanPool(s scanner) (*models.Pool, error) {
	var p models.Pool
	var status string
	var members pq.StringArray
	err := s.Scan(&p.ID, &members, &p.Passengers, &p.Luggage, &p.Pickup.Lat, &p.Pickup.Lon,
		&p.Dropoff.Lat, &p.Dropoff.Lon, &p.DistanceKm, &p.DurationMin, &p.Fare, &p.PerMember,
		&status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.MemberIDs = []string(members)
	p.Status = models.PoolStatus(status)
	return &p, nil
}
