// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package version

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// poolIface is the subset of pgxpool.Pool the resolver uses, so tests can
// substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresResolver reads deployed versions from the papp_info table. The
// dir_name column is relative to the software directory.
type PostgresResolver struct {
	pool        poolIface
	softwareDir string
	closer      func()
}

// NewPostgresResolver connects to the database at url.
func NewPostgresResolver(ctx context.Context, url, softwareDir string) (*PostgresResolver, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, oops.Code("VERSION_STORE_CONNECT_FAILED").In("version").Wrap(err)
	}
	r := NewPostgresResolverWithPool(pool, softwareDir)
	r.closer = pool.Close
	return r, nil
}

// NewPostgresResolverWithPool creates a resolver over an existing pool.
func NewPostgresResolverWithPool(pool poolIface, softwareDir string) *PostgresResolver {
	return &PostgresResolver{pool: pool, softwareDir: softwareDir}
}

// Close releases the connection pool if the resolver owns it.
func (r *PostgresResolver) Close() {
	if r.closer != nil {
		r.closer()
	}
}

const selectVersions = `SELECT name, title, version, dir_name, runtime,
	COALESCE(entry, ''), COALESCE(build_number, ''), COALESCE(build_date, ''),
	COALESCE(creator, ''), COALESCE(website, ''), capabilities
	FROM papp_info WHERE name = $1`

// ResolveLatest implements Resolver.
func (r *PostgresResolver) ResolveLatest(ctx context.Context, name string) (*Info, error) {
	rows, err := r.pool.Query(ctx, selectVersions, name)
	if err != nil {
		return nil, wrapStoreErr(err, "resolve latest", name)
	}
	defer rows.Close()

	var infos []*Info
	for rows.Next() {
		var (
			info    Info
			dirName string
			runtime string
		)
		if err := rows.Scan(&info.Name, &info.Title, &info.Version, &dirName, &runtime,
			&info.Entry, &info.BuildNumber, &info.BuildDate,
			&info.Creator, &info.Website, &info.Capabilities); err != nil {
			return nil, oops.In("version").With("operation", "scan papp_info row").With("papp", name).Wrap(err)
		}
		info.Runtime = Runtime(runtime)
		info.Dir = filepath.Join(r.softwareDir, dirName)
		infos = append(infos, &info)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(err, "iterate papp_info", name)
	}

	return Latest(infos), nil
}

// Names implements Lister.
func (r *PostgresResolver) Names(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT name FROM papp_info ORDER BY name`)
	if err != nil {
		return nil, wrapStoreErr(err, "list papp names", "")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, oops.In("version").With("operation", "scan papp name").Wrap(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(err, "iterate papp names", "")
	}
	return names, nil
}

// Publish records a deployed build. dirName is relative to the software
// directory. Publishing an existing name/version pair updates it.
func (r *PostgresResolver) Publish(ctx context.Context, info Info, dirName string) error {
	if err := ValidateName(info.Name); err != nil {
		return err
	}
	if err := ValidateEntry(info.Entry); err != nil {
		return oops.With("papp", info.Name).Wrap(err)
	}
	if info.Runtime == "" {
		info.Runtime = RuntimeGo
	}
	if info.Capabilities == nil {
		info.Capabilities = []string{}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO papp_info (name, title, version, dir_name, runtime, entry,
			build_number, build_date, creator, website, capabilities)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (name, version) DO UPDATE SET
			title = EXCLUDED.title, dir_name = EXCLUDED.dir_name,
			runtime = EXCLUDED.runtime, entry = EXCLUDED.entry,
			build_number = EXCLUDED.build_number, build_date = EXCLUDED.build_date,
			creator = EXCLUDED.creator, website = EXCLUDED.website,
			capabilities = EXCLUDED.capabilities`,
		info.Name, info.Title, info.Version, dirName, string(info.Runtime), info.Entry,
		info.BuildNumber, info.BuildDate, info.Creator, info.Website, info.Capabilities,
	)
	if err != nil {
		return wrapStoreErr(err, "publish version", info.Name)
	}
	return nil
}

func wrapStoreErr(err error, operation, name string) error {
	b := oops.In("version").With("operation", operation)
	if name != "" {
		b = b.With("papp", name)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return b.Code("VERSION_STORE_NOT_MIGRATED").Hint("run 'papphost migrate' to create the papp_info table").Wrap(err)
	}
	return b.Code("VERSION_STORE_QUERY_FAILED").Wrap(err)
}
