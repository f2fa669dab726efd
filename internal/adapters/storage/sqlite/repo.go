// Package sqlite persists work items and the user directory in a local
// sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/draftwork/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

// Repository stores work items as aggregate rows: scalar fields in columns,
// the owned collections (comments, activities, blockers) as JSON. SaveItem
// enforces optimistic concurrency on the revision column.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the database file and runs migrations.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a throwaway in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// cache=shared keeps one shared database across pooled connections.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the schema.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			handle TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL,
			position INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			brief_url TEXT NOT NULL DEFAULT '',
			asset_url TEXT NOT NULL DEFAULT '',
			price REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			assigned_to_json TEXT,
			created_by_json TEXT NOT NULL,
			reviewer_name TEXT NOT NULL DEFAULT '',
			flow_payload TEXT NOT NULL DEFAULT '',
			public_library_id TEXT NOT NULL DEFAULT '',
			comments_json TEXT NOT NULL DEFAULT '[]',
			activities_json TEXT NOT NULL DEFAULT '[]',
			blockers_json TEXT NOT NULL DEFAULT '[]',
			revision INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);`,
		`CREATE INDEX IF NOT EXISTS idx_users_position ON users(position);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

const itemColumns = `id, name, description, brief_url, asset_url, price, status,
	assigned_to_json, created_by_json, reviewer_name, flow_payload, public_library_id,
	comments_json, activities_json, blockers_json, revision, created_at, updated_at`

// CreateItem inserts a new item and returns it with the assigned id.
func (r *Repository) CreateItem(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	cols, err := encodeCollections(item)
	if err != nil {
		return domain.WorkItem{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO items(
			name, description, brief_url, asset_url, price, status,
			assigned_to_json, created_by_json, reviewer_name, flow_payload, public_library_id,
			comments_json, activities_json, blockers_json, revision, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.Name, item.Description, item.BriefURL, item.AssetURL, item.Price, string(item.Status),
		cols.assignedTo, cols.createdBy, item.ReviewerName, item.FlowPayload, item.PublicLibraryID,
		cols.comments, cols.activities, cols.blockers, item.Revision, ts(item.CreatedAt), ts(item.UpdatedAt),
	)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("insert item id: %w", err)
	}
	item.ID = id
	return item, nil
}

// LoadItem returns one item by id.
func (r *Repository) LoadItem(ctx context.Context, id int64) (domain.WorkItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// SaveItem writes the full aggregate back. The revision predicate rejects
// writes against a record somebody else updated in between.
func (r *Repository) SaveItem(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	cols, err := encodeCollections(item)
	if err != nil {
		return domain.WorkItem{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET name = ?, description = ?, brief_url = ?, asset_url = ?, price = ?, status = ?,
			assigned_to_json = ?, reviewer_name = ?, flow_payload = ?, public_library_id = ?,
			comments_json = ?, activities_json = ?, blockers_json = ?,
			revision = revision + 1, updated_at = ?
		WHERE id = ? AND revision = ?
	`,
		item.Name, item.Description, item.BriefURL, item.AssetURL, item.Price, string(item.Status),
		cols.assignedTo, item.ReviewerName, item.FlowPayload, item.PublicLibraryID,
		cols.comments, cols.activities, cols.blockers, ts(item.UpdatedAt),
		item.ID, item.Revision,
	)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("update item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WorkItem{}, err
	}
	if affected == 0 {
		var exists int
		if scanErr := r.db.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, item.ID).Scan(&exists); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return domain.WorkItem{}, fmt.Errorf("item %d: %w", item.ID, domain.ErrNotFound)
			}
			return domain.WorkItem{}, scanErr
		}
		return domain.WorkItem{}, fmt.Errorf("item %d revision %d: %w", item.ID, item.Revision, domain.ErrConflict)
	}
	item.Revision++
	return item, nil
}

// DeleteItem removes one item.
func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListItems returns all items, newest first.
func (r *Repository) ListItems(ctx context.Context) ([]domain.WorkItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.WorkItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertUser inserts or refreshes one directory entry. Position fixes the
// directory order mention candidates are returned in.
func (r *Repository) UpsertUser(ctx context.Context, user domain.UserRef, position int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users(id, handle, display_name, role, position)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			handle = excluded.handle,
			display_name = excluded.display_name,
			role = excluded.role,
			position = excluded.position
	`, user.ID, user.Handle, user.DisplayName, string(user.Role), position)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns one directory user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (domain.UserRef, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, handle, display_name, role FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByHandle returns one directory user by handle.
func (r *Repository) GetUserByHandle(ctx context.Context, handle string) (domain.UserRef, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, handle, display_name, role FROM users WHERE handle = ?`, handle)
	return scanUser(row)
}

// ListUsers returns the directory in its seeded order.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.UserRef, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, handle, display_name, role FROM users ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.UserRef, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// collectionJSON carries the encoded owned collections of one item row.
type collectionJSON struct {
	assignedTo any
	createdBy  string
	comments   string
	activities string
	blockers   string
}

// encodeCollections marshals the aggregate's owned collections.
func encodeCollections(item domain.WorkItem) (collectionJSON, error) {
	var cols collectionJSON

	createdBy, err := json.Marshal(item.CreatedBy)
	if err != nil {
		return cols, fmt.Errorf("encode created_by: %w", err)
	}
	cols.createdBy = string(createdBy)

	cols.assignedTo = nil
	if item.AssignedTo != nil {
		assignedTo, err := json.Marshal(item.AssignedTo)
		if err != nil {
			return cols, fmt.Errorf("encode assigned_to: %w", err)
		}
		cols.assignedTo = string(assignedTo)
	}

	comments, err := json.Marshal(emptyAsSlice(item.Comments))
	if err != nil {
		return cols, fmt.Errorf("encode comments: %w", err)
	}
	cols.comments = string(comments)

	activities, err := json.Marshal(emptyAsSlice(item.Activities))
	if err != nil {
		return cols, fmt.Errorf("encode activities: %w", err)
	}
	cols.activities = string(activities)

	blockers, err := json.Marshal(emptyAsSlice(item.Blockers))
	if err != nil {
		return cols, fmt.Errorf("encode blockers: %w", err)
	}
	cols.blockers = string(blockers)
	return cols, nil
}

// emptyAsSlice keeps nil collections encoding as [] instead of null.
func emptyAsSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

// scanItem decodes one item row.
func scanItem(s scanner) (domain.WorkItem, error) {
	var (
		item          domain.WorkItem
		status        string
		assignedToRaw sql.NullString
		createdByRaw  string
		commentsRaw   string
		activitiesRaw string
		blockersRaw   string
		createdAtRaw  string
		updatedAtRaw  string
	)
	if err := s.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.BriefURL,
		&item.AssetURL,
		&item.Price,
		&status,
		&assignedToRaw,
		&createdByRaw,
		&item.ReviewerName,
		&item.FlowPayload,
		&item.PublicLibraryID,
		&commentsRaw,
		&activitiesRaw,
		&blockersRaw,
		&item.Revision,
		&createdAtRaw,
		&updatedAtRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkItem{}, domain.ErrNotFound
		}
		return domain.WorkItem{}, err
	}

	item.Status = domain.Status(status)
	item.CreatedAt = parseTS(createdAtRaw)
	item.UpdatedAt = parseTS(updatedAtRaw)

	if err := json.Unmarshal([]byte(createdByRaw), &item.CreatedBy); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode created_by_json: %w", err)
	}
	if assignedToRaw.Valid && strings.TrimSpace(assignedToRaw.String) != "" {
		var assignee domain.UserRef
		if err := json.Unmarshal([]byte(assignedToRaw.String), &assignee); err != nil {
			return domain.WorkItem{}, fmt.Errorf("decode assigned_to_json: %w", err)
		}
		item.AssignedTo = &assignee
	}
	if err := json.Unmarshal([]byte(commentsRaw), &item.Comments); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode comments_json: %w", err)
	}
	if err := json.Unmarshal([]byte(activitiesRaw), &item.Activities); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode activities_json: %w", err)
	}
	if err := json.Unmarshal([]byte(blockersRaw), &item.Blockers); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode blockers_json: %w", err)
	}
	return item, nil
}

// scanUser decodes one directory row.
func scanUser(s scanner) (domain.UserRef, error) {
	var (
		user domain.UserRef
		role string
	)
	if err := s.Scan(&user.ID, &user.Handle, &user.DisplayName, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserRef{}, domain.ErrNotFound
		}
		return domain.UserRef{}, err
	}
	user.Role = domain.Role(role)
	return user, nil
}

// ts formats timestamps for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses stored timestamps.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
