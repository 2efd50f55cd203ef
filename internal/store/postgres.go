package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigilhq/vigil-master/pkg/models"
)

// PostgresStore implements AlarmStore using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const alarmColumns = `owner, id, probe, probe_group, closed, suppressed, num_events,
	faults, maint_faults, time_opened, time_closed, time_last_event`

// Create persists the alarm under the next free id for its owner. Ids are
// per-owner counters enforced by the (owner, id) primary key; a concurrent
// insert for the same owner can collide on the computed id, so the insert
// retries a few times before giving up.
func (s *PostgresStore) Create(ctx context.Context, alarm *models.Alarm) error {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		err := s.pool.QueryRow(ctx,
			`INSERT INTO alarms (`+alarmColumns+`)
			 VALUES ($1, (SELECT COALESCE(MAX(id), 0) + 1 FROM alarms WHERE owner = $1),
			         $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id`,
			alarm.User, nullStr(alarm.Probe), nullStr(alarm.ProbeGroup),
			alarm.Closed, alarm.Suppressed, alarm.NumEvents,
			faultsJSON(alarm.Faults), faultsJSON(alarm.MaintFaults),
			alarm.TimeOpened, alarm.TimeClosed, alarm.TimeLastEvent,
		).Scan(&alarm.ID)
		if err == nil {
			return nil
		}
		if isDuplicateKeyError(err) {
			continue
		}
		return fmt.Errorf("create alarm: %w", err)
	}
	return ErrDuplicateKey
}

func (s *PostgresStore) Get(ctx context.Context, owner string, id int64) (*models.Alarm, error) {
	a, err := scanAlarm(s.pool.QueryRow(ctx,
		`SELECT `+alarmColumns+` FROM alarms WHERE owner = $1 AND id = $2`, owner, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alarm: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, filter AlarmFilter) ([]*models.Alarm, error) {
	conditions := []string{"owner = $1"}
	args := []any{filter.Owner}
	argIdx := 2

	switch filter.State {
	case StateOpen, "":
		conditions = append(conditions, "NOT closed")
	case StateClosed:
		conditions = append(conditions, "closed")
	case StateRecent:
		conditions = append(conditions, "(NOT closed OR time_closed >= NOW() - INTERVAL '1 hour')")
	case StateAll:
	default:
		return nil, fmt.Errorf("invalid alarm state %q", filter.State)
	}
	if filter.Probe != "" {
		conditions = append(conditions, fmt.Sprintf("probe = $%d", argIdx))
		args = append(args, filter.Probe)
		argIdx++
	}
	if filter.ProbeGroup != "" {
		conditions = append(conditions, fmt.Sprintf("probe_group = $%d", argIdx))
		args = append(args, filter.ProbeGroup)
		argIdx++
	}

	query := `SELECT ` + alarmColumns + ` FROM alarms WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY time_last_event DESC NULLS LAST, id DESC`
	return s.queryAlarms(ctx, query, args...)
}

func (s *PostgresStore) ListOpen(ctx context.Context, owner string) ([]*models.Alarm, error) {
	return s.queryAlarms(ctx,
		`SELECT `+alarmColumns+` FROM alarms
		 WHERE owner = $1 AND NOT closed
		 ORDER BY time_last_event DESC NULLS LAST, id DESC`, owner)
}

func (s *PostgresStore) Update(ctx context.Context, alarm *models.Alarm) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alarms SET closed = $3, suppressed = $4, num_events = $5,
		   faults = $6, maint_faults = $7, time_closed = $8, time_last_event = $9
		 WHERE owner = $1 AND id = $2`,
		alarm.User, alarm.ID, alarm.Closed, alarm.Suppressed, alarm.NumEvents,
		faultsJSON(alarm.Faults), faultsJSON(alarm.MaintFaults),
		alarm.TimeClosed, alarm.TimeLastEvent)
	if err != nil {
		return fmt.Errorf("update alarm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetClosed(ctx context.Context, owner string, id int64, closed bool) error {
	var query string
	if closed {
		query = `UPDATE alarms SET closed = TRUE, time_closed = NOW()
		         WHERE owner = $1 AND id = $2 AND NOT closed`
	} else {
		query = `UPDATE alarms SET closed = FALSE, time_closed = NULL
		         WHERE owner = $1 AND id = $2 AND closed`
	}
	tag, err := s.pool.Exec(ctx, query, owner, id)
	if err != nil {
		return fmt.Errorf("set alarm closed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either absent or already in the requested state; disambiguate.
		if _, err := s.Get(ctx, owner, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) SetSuppressed(ctx context.Context, owner string, id int64, suppressed bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alarms SET suppressed = $3 WHERE owner = $1 AND id = $2`,
		owner, id, suppressed)
	if err != nil {
		return fmt.Errorf("set alarm suppressed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, owner string, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM alarms WHERE owner = $1 AND id = $2`, owner, id)
	if err != nil {
		return fmt.Errorf("delete alarm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryAlarms(ctx context.Context, query string, args ...any) ([]*models.Alarm, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer rows.Close()

	var alarms []*models.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}

func scanAlarm(row pgx.Row) (*models.Alarm, error) {
	var a models.Alarm
	var probe, probeGroup *string
	err := row.Scan(&a.User, &a.ID, &probe, &probeGroup, &a.Closed, &a.Suppressed,
		&a.NumEvents, &a.Faults, &a.MaintFaults, &a.TimeOpened, &a.TimeClosed,
		&a.TimeLastEvent)
	if err != nil {
		return nil, err
	}
	if probe != nil {
		a.Probe = *probe
	}
	if probeGroup != nil {
		a.ProbeGroup = *probeGroup
	}
	return &a, nil
}

// faultsJSON normalizes nil to an empty array so the jsonb column never
// stores SQL NULL.
func faultsJSON(faults []models.Fault) []models.Fault {
	if faults == nil {
		return []models.Fault{}
	}
	return faults
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
