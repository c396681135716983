package pg

import (
	"context"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type roleRepo struct{ q querier }

func (r *roleRepo) EnsureRole(ctx context.Context, name, description string, permissions []string) (*repository.Role, error) {
	var id int64
	// DO UPDATE no-op para que RETURNING devuelva el id existente.
	err := r.q.QueryRow(ctx, `
		INSERT INTO roles (name, description) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name, description).Scan(&id)
	if err != nil {
		return nil, wrapErr("ensure role", err)
	}
	for _, p := range permissions {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, id, p); err != nil {
			return nil, wrapErr("ensure role permission", err)
		}
	}
	return r.GetByName(ctx, name)
}

func (r *roleRepo) permissions(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT permission FROM role_permissions WHERE role_id = $1 ORDER BY permission`, roleID)
	if err != nil {
		return nil, wrapErr("list permissions", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, wrapErr("scan permission", err)
		}
		out = append(out, p)
	}
	return out, wrapErr("list permissions", rows.Err())
}

func (r *roleRepo) GetByName(ctx context.Context, name string) (*repository.Role, error) {
	var role repository.Role
	err := r.q.QueryRow(ctx, `SELECT id, name, description FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.Description)
	if err != nil {
		return nil, wrapErr("get role", err)
	}
	if role.Permissions, err = r.permissions(ctx, role.ID); err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepo) List(ctx context.Context) ([]repository.Role, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, description FROM roles ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list roles", err)
	}
	var out []repository.Role
	for rows.Next() {
		var role repository.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			rows.Close()
			return nil, wrapErr("scan role", err)
		}
		out = append(out, role)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list roles", err)
	}
	for i := range out {
		if out[i].Permissions, err = r.permissions(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *roleRepo) AssignToUser(ctx context.Context, localUserID, roleID int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, localUserID, roleID)
	return wrapErr("assign role", err)
}

func (r *roleRepo) UserRoles(ctx context.Context, localUserID int64) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 ORDER BY r.name`, localUserID)
	if err != nil {
		return nil, wrapErr("user roles", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapErr("scan user role", err)
		}
		out = append(out, name)
	}
	return out, wrapErr("user roles", rows.Err())
}
