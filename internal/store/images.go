package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"swanid/internal/models"
)

const imageColumns = "id, filename, ext, media_type, size_bytes, sha256, created_at, updated_at"

// timeLayout is fixed width so created_at sorts lexically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Add inserts one image record and its tags in a single transaction.
func (s *Store) Add(ctx context.Context, rec *models.ImageRecord) (err error) {
	if rec == nil {
		return fmt.Errorf("image record is required")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("image id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	rec.Tags = dedupeTags(rec.Tags)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	exists, err := imageExists(ctx, tx, rec.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("add %s: %w", rec.ID, ErrDuplicateID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO images (id, filename, ext, media_type, size_bytes, sha256, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Filename,
		rec.Ext,
		nullIfEmpty(rec.MediaType),
		rec.SizeBytes,
		nullIfEmpty(rec.SHA256),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return fmt.Errorf("add %s: %w", rec.ID, ErrDuplicateID)
		}
		return err
	}

	if err = insertTagsTx(ctx, tx, rec.ID, rec.Tags); err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns one image record with its tags.
func (s *Store) Get(ctx context.Context, id string) (*models.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	rec, err := scanImage(row)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	tags, err := listTags(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	rec.Tags = tags
	return rec, nil
}

// GetFilename returns the original filename recorded for id.
func (s *Store) GetFilename(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filename string
	err := s.db.QueryRowContext(ctx, "SELECT filename FROM images WHERE id = ?", id).Scan(&filename)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return filename, nil
}

// GetTags returns the sorted tag set of id.
func (s *Store) GetTags(ctx context.Context, id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := imageExists(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return listTags(ctx, s.db, id)
}

// UpdateTags replaces the full tag set of id and returns the record as
// committed.
func (s *Store) UpdateTags(ctx context.Context, id string, tags []string) (rec *models.ImageRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "UPDATE images SET updated_at = ? WHERE id = ?", formatTime(s.now()), id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM image_tags WHERE image_id = ?", id); err != nil {
		return nil, err
	}
	if err = insertTagsTx(ctx, tx, id, dedupeTags(tags)); err != nil {
		return nil, err
	}

	rec, err = scanImage(tx.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Tags, err = listTags(ctx, tx, id); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteByID removes the record and its tags. Missing ids are ignored.
func (s *Store) DeleteByID(ctx context.Context, id string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Tags are removed explicitly; foreign_keys is a per-connection pragma.
	if _, err = tx.ExecContext(ctx, "DELETE FROM image_tags WHERE image_id = ?", id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM images WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// FindByTags returns ids of records carrying at least one of tags, ordered
// by creation time and then id. An empty query matches nothing.
func (s *Store) FindByTags(ctx context.Context, tags []string) ([]string, error) {
	tags = dedupeTags(tags)
	if len(tags) == 0 {
		return []string{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, 0, len(tags))
	for _, tag := range tags {
		args = append(args, tag)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM images
		WHERE id IN (SELECT image_id FROM image_tags WHERE tag IN (`+placeholders(len(tags))+`))
		ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns every record with tags in creation order.
func (s *Store) List(ctx context.Context) ([]models.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+imageColumns+` FROM images ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.ImageRecord{}
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tagsByID, err := listAllTags(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Tags = tagsByID[records[i].ID]
		if records[i].Tags == nil {
			records[i].Tags = []string{}
		}
	}
	return records, nil
}

// Exists reports whether a record is stored for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return imageExists(ctx, s.db, id)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func imageExists(ctx context.Context, q queryer, id string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM images WHERE id = ? LIMIT 1", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func listTags(ctx context.Context, q queryer, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT tag FROM image_tags WHERE image_id = ? ORDER BY tag ASC", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func listAllTags(ctx context.Context, q queryer) (map[string][]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT image_id, tag FROM image_tags ORDER BY image_id ASC, tag ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, err
		}
		out[id] = append(out[id], tag)
	}
	return out, rows.Err()
}

func insertTagsTx(ctx context.Context, tx *sql.Tx, id string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO image_tags (image_id, tag) VALUES "+tagValues(len(tags)), tagArgs(id, tags)...)
	return err
}

func scanImage(scanner interface {
	Scan(dest ...any) error
}) (*models.ImageRecord, error) {
	rec := models.ImageRecord{}
	var mediaType, sha sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.Filename,
		&rec.Ext,
		&mediaType,
		&rec.SizeBytes,
		&sha,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rec.MediaType = mediaType.String
	rec.SHA256 = sha.String

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimRight(strings.Repeat("?,", count), ",")
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func tagValues(count int) string {
	values := make([]string, count)
	for i := 0; i < count; i++ {
		values[i] = "(?, ?)"
	}
	return strings.Join(values, ",")
}

func tagArgs(id string, tags []string) []any {
	args := make([]any, 0, len(tags)*2)
	for _, tag := range tags {
		args = append(args, id, tag)
	}
	return args
}
