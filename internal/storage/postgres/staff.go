package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-backoffice/internal/domain/staff"
)

var _ staff.Repository = (*StaffStore)(nil)

// StaffStore implements staff.Repository backed by PostgreSQL.
type StaffStore struct {
	pool *pgxpool.Pool
}

// NewStaffStore returns a StaffStore that uses the given pool.
func NewStaffStore(pool *pgxpool.Pool) *StaffStore {
	return &StaffStore{pool: pool}
}

// FindByKeyHash looks up an active staff member by API key hash.
// Returns staff.ErrNotFound when no active member owns the key.
func (s *StaffStore) FindByKeyHash(ctx context.Context, hash string) (*staff.Member, error) {
	var m staff.Member
	err := conn(ctx, s.pool).QueryRow(ctx,
		`SELECT id, name, role, COALESCE(key_hash, ''), active FROM staff WHERE key_hash = $1 AND active`, hash,
	).Scan(&m.ID, &m.Name, &m.Role, &m.KeyHash, &m.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, staff.ErrNotFound
		}
		return nil, errors.Wrap(err, "find staff by key hash")
	}
	return &m, nil
}

// ListStaff returns every staff member, active or not.
func (s *StaffStore) ListStaff(ctx context.Context) ([]staff.Member, error) {
	rows, err := conn(ctx, s.pool).Query(ctx,
		`SELECT id, name, role, COALESCE(key_hash, ''), active FROM staff ORDER BY name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query staff")
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (staff.Member, error) {
		var m staff.Member
		err := row.Scan(&m.ID, &m.Name, &m.Role, &m.KeyHash, &m.Active)
		return m, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect staff")
	}
	return members, nil
}

// UpsertStaff inserts or updates a staff member. An empty KeyHash keeps the
// existing key.
func (s *StaffStore) UpsertStaff(ctx context.Context, m staff.Member) error {
	_, err := conn(ctx, s.pool).Exec(ctx, `INSERT INTO staff (id, name, role, key_hash, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role,
			key_hash = COALESCE(EXCLUDED.key_hash, staff.key_hash), active = EXCLUDED.active`,
		m.ID, m.Name, string(m.Role), nullString(m.KeyHash), m.Active)
	if err != nil {
		return errors.Wrapf(err, "upsert staff %q", m.ID)
	}
	return nil
}
