package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"birthdaysite/pkg/logger"

	"github.com/google/uuid"
)

// PostgresStore keeps every path as one row of the site_nodes table. Pushed
// children live in their own rows under "<path>/<key>".
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (r *PostgresStore) Get(ctx context.Context, path string) (json.RawMessage, string, error) {
	var value []byte
	var version int64
	err := r.DB.QueryRowContext(ctx, "SELECT value, version FROM site_nodes WHERE path = $1", cleanPath(path)).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to read node %s: %v", path, err)
		return nil, "", err
	}
	return json.RawMessage(value), strconv.FormatInt(version, 10), nil
}

func (r *PostgresStore) Set(ctx context.Context, path string, value any) (string, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	version, err := upsert(ctx, r.DB, cleanPath(path), payload)
	if err != nil {
		logger.Sugar.Errorf("Failed to write node %s: %v", path, err)
		return "", err
	}
	return strconv.FormatInt(version, 10), nil
}

func (r *PostgresStore) Push(ctx context.Context, path string, value any) (string, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	key := uuid.NewString()
	_, err = r.DB.ExecContext(ctx, `INSERT INTO site_nodes (path, value, version, updated_at) VALUES ($1, $2, 1, NOW())`,
		cleanPath(path)+"/"+key, string(payload))
	if err != nil {
		logger.Sugar.Errorf("Failed to push to %s: %v", path, err)
		return "", err
	}
	return key, nil
}

// Transaction serializes writers on the path with an advisory lock so absent
// rows are covered too.
func (r *PostgresStore) Transaction(ctx context.Context, path string, update UpdateFunc) (json.RawMessage, error) {
	path = cleanPath(path)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", path); err != nil {
		logger.Sugar.Errorf("Failed to lock node %s: %v", path, err)
		return nil, err
	}

	var current []byte
	err = tx.QueryRowContext(ctx, "SELECT value FROM site_nodes WHERE path = $1", path).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Sugar.Errorf("Failed to read node %s in transaction: %v", path, err)
		return nil, err
	}

	next, err := update(current)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	if _, err := upsert(ctx, tx, path, payload); err != nil {
		logger.Sugar.Errorf("Failed to write node %s in transaction: %v", path, err)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

// Children lists the rows pushed directly under path.
func (r *PostgresStore) Children(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	prefix := cleanPath(path) + "/"
	rows, err := r.DB.QueryContext(ctx, "SELECT path, value FROM site_nodes WHERE path LIKE $1 AND path NOT LIKE $2",
		prefix+"%", prefix+"%/%")
	if err != nil {
		logger.Sugar.Errorf("Failed to list children of %s: %v", path, err)
		return nil, err
	}
	defer rows.Close()

	children := map[string]json.RawMessage{}
	for rows.Next() {
		var (
			child string
			value []byte
		)
		if err := rows.Scan(&child, &value); err != nil {
			return nil, err
		}
		children[strings.TrimPrefix(child, prefix)] = json.RawMessage(value)
	}
	return children, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsert(ctx context.Context, q queryRower, path string, payload []byte) (int64, error) {
	var version int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO site_nodes (path, value, version, updated_at) VALUES ($1, $2, 1, NOW())
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, version = site_nodes.version + 1, updated_at = NOW()
		RETURNING version`, path, string(payload)).Scan(&version)
	return version, err
}
