package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// membershipQuery picks the subject's primary tenant membership, falling back
// to the oldest one when no membership is flagged primary.
const membershipQuery = `
SELECT ut.tenant_id, COALESCE(t.type, 'individual'), ut.role
FROM user_tenants ut
JOIN tenants t ON t.id = ut.tenant_id
WHERE ut.user_id = $1
ORDER BY ut.is_primary DESC, ut.created_at ASC
LIMIT 1`

// permissionsQuery expands a role within a tenant into its permission set.
const permissionsQuery = `
SELECT p.name
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.tenant_id = $1 AND rp.role = $2
ORDER BY p.name`

// SQLStore resolves tenant context straight from the platform database.
type SQLStore struct {
	pool *pgxpool.Pool
}

// NewSQLStore builds a resolver over an existing pgx pool. The pool is owned
// by the caller; the store never closes it.
func NewSQLStore(pool *pgxpool.Pool) (*SQLStore, error) {
	if pool == nil {
		return nil, errors.New("tenant: pgx pool is required")
	}
	return &SQLStore{pool: pool}, nil
}

// ResolveTenant implements Resolver.
func (s *SQLStore) ResolveTenant(ctx context.Context, subject string) (*Context, error) {
	var tc Context
	var role string

	err := s.pool.QueryRow(ctx, membershipQuery, subject).Scan(&tc.TenantID, &tc.Type, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: subject %s", ErrNotFound, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	tc.Roles = []string{role}

	rows, err := s.pool.Query(ctx, permissionsQuery, tc.TenantID, role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
		tc.Permissions = append(tc.Permissions, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	return &tc, nil
}
