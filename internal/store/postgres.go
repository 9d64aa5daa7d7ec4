// README: PostgreSQL Store backed by pgx.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists pickups and workers in PostgreSQL. Assignment
// transactions lock the pickup row with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const pickupColumns = `
    id, bin_id, customer_id, worker_id, status, version,
    lat, lng, address, expected_fee, currency, waste_type, estimated_weight_kg, notes,
    created_at, accepted_at, picked_at, delivered_at, completed_at, cancelled_at,
    window_start, window_end, estimated_completion`

// SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const workerColumns = `
    id, name, lat, lng, location_updated_at, is_available, service_radius_km, rating, active_pickups`

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePickup(ctx context.Context, p *pickup.Pickup) error {
	return insertPickup(ctx, s.db, p)
}

func insertPickup(ctx context.Context, q querier, p *pickup.Pickup) error {
	if p.ID == "" {
		return pickup.ErrBadRequest
	}
	var lat, lng *float64
	if p.Location != nil {
		lat, lng = &p.Location.Lat, &p.Location.Lng
	}
	_, err := q.Exec(ctx, `
        INSERT INTO pickups (
            id, bin_id, customer_id, worker_id, status, version,
            lat, lng, address, expected_fee, currency, waste_type, estimated_weight_kg, notes,
            created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6,
            $7, $8, $9, $10, $11, $12, $13, $14,
            $15
        )`,
		string(p.ID), string(p.BinID), string(p.CustomerID), idPtr(p.WorkerID), string(p.Status), p.Version,
		lat, lng, p.Address, p.ExpectedFee.Amount, p.ExpectedFee.Currency, p.WasteType, p.EstimatedWeightKg, p.Notes,
		p.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("pickup %s already exists: %w", p.ID, pickup.ErrBadRequest)
	}
	return err
}

func (s *PostgresStore) GetPickup(ctx context.Context, id types.ID) (*pickup.Pickup, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pickupColumns+` FROM pickups WHERE id = $1`, string(id))
	return scanPickup(row)
}

func (s *PostgresStore) ListPickups(ctx context.Context, f PickupFilter) ([]pickup.Pickup, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.WorkerID != nil {
		add("worker_id = $%d", string(*f.WorkerID))
	}
	if f.CustomerID != nil {
		add("customer_id = $%d", string(*f.CustomerID))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.AcceptedFrom != nil {
		add("accepted_at >= $%d", *f.AcceptedFrom)
	}
	if f.AcceptedTo != nil {
		add("accepted_at < $%d", *f.AcceptedTo)
	}

	q := `SELECT ` + pickupColumns + ` FROM pickups`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.NewestFirst {
		q += " ORDER BY created_at DESC, id DESC"
	} else {
		q += " ORDER BY created_at, id"
	}
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]pickup.Pickup, 0)
	for rows.Next() {
		p, err := scanPickup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListEvents(ctx context.Context, pickupID types.ID) ([]pickup.Event, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, pickup_id, from_status, to_status, actor_type, actor_id, created_at
        FROM pickup_state_events
        WHERE pickup_id = $1
        ORDER BY id`, string(pickupID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pickup.Event
	for rows.Next() {
		var e pickup.Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.PickupID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			id := types.ID(*actorID)
			e.ActorID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertWorker(ctx context.Context, w *worker.Worker) error {
	var lat, lng *float64
	if w.Location != nil {
		lat, lng = &w.Location.Lat, &w.Location.Lng
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO workers (id, name, lat, lng, location_updated_at, is_available, service_radius_km, rating)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            lat = EXCLUDED.lat,
            lng = EXCLUDED.lng,
            location_updated_at = EXCLUDED.location_updated_at,
            is_available = EXCLUDED.is_available,
            service_radius_km = EXCLUDED.service_radius_km,
            rating = EXCLUDED.rating`,
		string(w.ID), w.Name, lat, lng, w.LocationUpdatedAt, w.Available, w.ServiceRadiusKm, w.Rating,
	)
	return err
}

func (s *PostgresStore) GetWorker(ctx context.Context, id types.ID) (*worker.Worker, error) {
	row := s.db.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = $1`, string(id))
	return scanWorker(row)
}

func (s *PostgresStore) ListWorkers(ctx context.Context) ([]worker.Worker, error) {
	return queryWorkers(ctx, s.db, `SELECT `+workerColumns+` FROM workers ORDER BY id`)
}

func (s *PostgresStore) UpdateWorkerLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) (*worker.Worker, error) {
	row := s.db.QueryRow(ctx, `
        UPDATE workers SET lat = $2, lng = $3, location_updated_at = $4
        WHERE id = $1
        RETURNING `+workerColumns, string(id), p.Lat, p.Lng, at,
	)
	return scanWorker(row)
}

func (s *PostgresStore) SetWorkerAvailability(ctx context.Context, id types.ID, available bool) (*worker.Worker, error) {
	row := s.db.QueryRow(ctx, `
        UPDATE workers SET is_available = $2
        WHERE id = $1
        RETURNING `+workerColumns, string(id), available,
	)
	return scanWorker(row)
}

type pgTx struct {
	q querier
}

func (t *pgTx) InsertPickup(ctx context.Context, p *pickup.Pickup) error {
	return insertPickup(ctx, t.q, p)
}

func (t *pgTx) PickupForUpdate(ctx context.Context, id types.ID) (*pickup.Pickup, error) {
	row := t.q.QueryRow(ctx, `SELECT `+pickupColumns+` FROM pickups WHERE id = $1 FOR UPDATE`, string(id))
	return scanPickup(row)
}

func (t *pgTx) CandidateWorkers(ctx context.Context) ([]worker.Worker, error) {
	return queryWorkers(ctx, t.q, `
        SELECT `+workerColumns+` FROM workers
        WHERE is_available AND lat IS NOT NULL AND lng IS NOT NULL
        ORDER BY id`)
}

func (t *pgTx) ReserveWorkerSlot(ctx context.Context, id types.ID, limit int) (bool, error) {
	tag, err := t.q.Exec(ctx, `
        UPDATE workers SET active_pickups = active_pickups + 1
        WHERE id = $1 AND is_available AND active_pickups < $2`, string(id), limit,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var available bool
	err = t.q.QueryRow(ctx, `SELECT is_available FROM workers WHERE id = $1`, string(id)).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, worker.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if !available {
		return false, worker.ErrUnavailable
	}
	return false, nil
}

func (t *pgTx) ReleaseWorkerSlot(ctx context.Context, id types.ID) error {
	_, err := t.q.Exec(ctx, `
        UPDATE workers SET active_pickups = GREATEST(active_pickups - 1, 0)
        WHERE id = $1`, string(id),
	)
	return err
}

func (t *pgTx) SavePickup(ctx context.Context, p *pickup.Pickup) error {
	tag, err := t.q.Exec(ctx, `
        UPDATE pickups SET
            worker_id = $2,
            status = $3,
            version = version + 1,
            accepted_at = $4,
            picked_at = $5,
            delivered_at = $6,
            completed_at = $7,
            cancelled_at = $8,
            window_start = $9,
            window_end = $10,
            estimated_completion = $11,
            notes = $12
        WHERE id = $1`,
		string(p.ID), idPtr(p.WorkerID), string(p.Status),
		p.AcceptedAt, p.PickedAt, p.DeliveredAt, p.CompletedAt, p.CancelledAt,
		p.WindowStart, p.WindowEnd, p.EstimatedCompletion, p.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return pickup.ErrNotFound
	}
	p.Version++
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *pickup.Event) error {
	_, err := t.q.Exec(ctx, `
        INSERT INTO pickup_state_events (
            pickup_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.PickupID), string(e.FromStatus), string(e.ToStatus), e.ActorType, idPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

func (t *pgTx) SetPickupWindow(ctx context.Context, id types.ID, start, end time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
        UPDATE pickups SET window_start = $2, window_end = $3
        WHERE id = $1 AND status = 'accepted'`, string(id), start, end,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanPickup(row pgx.Row) (*pickup.Pickup, error) {
	var (
		p          pickup.Pickup
		workerID   *string
		lat, lng   *float64
		currency   string
		feeAmount  int64
		statusText string
	)
	err := row.Scan(
		&p.ID, &p.BinID, &p.CustomerID, &workerID, &statusText, &p.Version,
		&lat, &lng, &p.Address, &feeAmount, &currency, &p.WasteType, &p.EstimatedWeightKg, &p.Notes,
		&p.CreatedAt, &p.AcceptedAt, &p.PickedAt, &p.DeliveredAt, &p.CompletedAt, &p.CancelledAt,
		&p.WindowStart, &p.WindowEnd, &p.EstimatedCompletion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pickup.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = pickup.Status(statusText)
	p.ExpectedFee = types.Money{Amount: feeAmount, Currency: currency}
	if workerID != nil {
		id := types.ID(*workerID)
		p.WorkerID = &id
	}
	if lat != nil && lng != nil {
		p.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &p, nil
}

func scanWorker(row pgx.Row) (*worker.Worker, error) {
	var (
		w        worker.Worker
		lat, lng *float64
	)
	err := row.Scan(&w.ID, &w.Name, &lat, &lng, &w.LocationUpdatedAt, &w.Available, &w.ServiceRadiusKm, &w.Rating, &w.ActivePickups)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		w.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &w, nil
}

func queryWorkers(ctx context.Context, q querier, sql string, args ...any) ([]worker.Worker, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]worker.Worker, 0)
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
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
