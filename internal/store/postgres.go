package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

const pgUniqueViolation = "23505"

const workspaceColumns = `id, name, slug, owner_id, files, manifest, stars, forks,
	is_published, preview_enabled, preview_expires_at, parent_id, created_at, updated_at`

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*core.Workspace, error) {
	var (
		ws       core.Workspace
		files    []byte
		manifest []byte
		expires  pgtype.Timestamptz
		parent   pgtype.Text
		created  pgtype.Timestamptz
		updated  pgtype.Timestamptz
	)
	err := row.Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.OwnerID, &files, &manifest,
		&ws.Stars, &ws.Forks, &ws.IsPublished, &ws.PreviewEnabled,
		&expires, &parent, &created, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(files, &ws.Files); err != nil {
		return nil, err
	}
	if len(manifest) > 0 {
		ws.Manifest = json.RawMessage(manifest)
	}
	if expires.Valid {
		t := expires.Time
		ws.PreviewExpiresAt = &t
	}
	if parent.Valid {
		p := parent.String
		ws.ParentID = &p
	}
	ws.CreatedAt = created.Time
	ws.UpdatedAt = updated.Time
	return &ws, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Get(ctx context.Context, id string) (*core.Workspace, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM oslab.workspaces WHERE id = $1`, id)
	ws, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("workspace")
	}
	if err != nil {
		return nil, errPersistence("get workspace", err)
	}
	return ws, nil
}

func (s *Postgres) GetBySlug(ctx context.Context, slug string) (*core.Workspace, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM oslab.workspaces WHERE slug = $1`, slug)
	ws, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("workspace")
	}
	if err != nil {
		return nil, errPersistence("get workspace by slug", err)
	}
	return ws, nil
}

func (s *Postgres) Create(ctx context.Context, p CreateParams) (*core.Workspace, error) {
	files, err := json.Marshal(p.Files)
	if err != nil {
		return nil, errPersistence("encode files", err)
	}

	base := core.Slugify(p.Name)
	slug := base
	for attempt := 0; ; attempt++ {
		row := s.pool.QueryRow(ctx, `
			INSERT INTO oslab.workspaces (id, name, slug, owner_id, files, manifest)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+workspaceColumns,
			core.NewID(), p.Name, slug, p.OwnerID, files, rawOrNil(p.Manifest))
		ws, err := scanWorkspace(row)
		if err == nil {
			return ws, nil
		}
		if isUniqueViolation(err) && attempt < 3 {
			slug = base + "-" + core.SlugSuffix()
			continue
		}
		if isUniqueViolation(err) {
			return nil, errConflict("slug already taken: " + slug)
		}
		return nil, errPersistence("create workspace", err)
	}
}

func (s *Postgres) Update(ctx context.Context, id string, patch UpdatePatch) (*core.Workspace, error) {
	ws, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		ws.Name = *patch.Name
	}
	if patch.Files != nil {
		ws.Files = patch.Files
	}
	if patch.Manifest != nil {
		ws.Manifest = patch.Manifest
	}
	files, err := json.Marshal(ws.Files)
	if err != nil {
		return nil, errPersistence("encode files", err)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE oslab.workspaces
		SET name = $2, files = $3, manifest = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+workspaceColumns,
		id, ws.Name, files, rawOrNil(ws.Manifest))
	out, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("workspace")
	}
	if err != nil {
		return nil, errPersistence("update workspace", err)
	}
	return out, nil
}

func (s *Postgres) Fork(ctx context.Context, sourceID, newOwnerID string) (*core.Workspace, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, errPersistence("begin fork", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM oslab.workspaces WHERE id = $1`, sourceID)
	src, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("workspace")
	}
	if err != nil {
		return nil, errPersistence("read fork source", err)
	}

	// Fork from the last published snapshot; fall back to the live tree
	// when the source was never published.
	tree, manifest := src.Files, src.Manifest
	var snapFiles, snapManifest []byte
	err = tx.QueryRow(ctx,
		`SELECT files, manifest FROM oslab.snapshots WHERE workspace_id = $1`,
		sourceID).Scan(&snapFiles, &snapManifest)
	switch {
	case err == nil:
		if err := json.Unmarshal(snapFiles, &tree); err != nil {
			return nil, errPersistence("decode snapshot", err)
		}
		manifest = json.RawMessage(snapManifest)
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, errPersistence("read fork snapshot", err)
	}

	files, err := json.Marshal(tree)
	if err != nil {
		return nil, errPersistence("encode files", err)
	}

	slug := core.ForkSlug(src.Slug)
	row = tx.QueryRow(ctx, `
		INSERT INTO oslab.workspaces (id, name, slug, owner_id, files, manifest, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+workspaceColumns,
		core.NewID(), src.Name+" (fork)", slug, newOwnerID, files, rawOrNil(manifest), sourceID)
	fork, err := scanWorkspace(row)
	if isUniqueViolation(err) {
		return nil, errConflict("fork slug already taken: " + slug)
	}
	if err != nil {
		return nil, errPersistence("insert fork", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE oslab.workspaces SET forks = forks + 1, updated_at = now() WHERE id = $1`,
		sourceID); err != nil {
		return nil, errPersistence("bump fork count", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errPersistence("commit fork", err)
	}
	return fork, nil
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM oslab.workspaces WHERE id = $1`, id)
	if err != nil {
		return errPersistence("delete workspace", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound("workspace")
	}
	return nil
}

func (s *Postgres) AddStar(ctx context.Context, id string) (*core.Workspace, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE oslab.workspaces SET stars = stars + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+workspaceColumns, id)
	ws, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound("workspace")
	}
	if err != nil {
		return nil, errPersistence("star workspace", err)
	}
	return ws, nil
}

func (s *Postgres) ListPublished(ctx context.Context, sortBy string, limit int) ([]*core.Workspace, error) {
	order := "created_at DESC"
	switch sortBy {
	case SortByStars:
		order = "stars DESC, created_at DESC"
	case SortByForks:
		order = "forks DESC, created_at DESC"
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+workspaceColumns+` FROM oslab.workspaces
		WHERE is_published ORDER BY `+order+` LIMIT $1`, limit)
	if err != nil {
		return nil, errPersistence("list published", err)
	}
	defer rows.Close()

	var out []*core.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, errPersistence("scan workspace", err)
		}
		out = append(out, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, errPersistence("list published", err)
	}
	return out, nil
}

func (s *Postgres) Publish(ctx context.Context, id string, p PublishParams) (*core.PublishedSnapshot, error) {
	files, err := json.Marshal(p.Files)
	if err != nil {
		return nil, errPersistence("encode files", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errPersistence("begin publish", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE oslab.workspaces
		SET files = $2, manifest = $3, is_published = true, preview_enabled = true,
		    preview_expires_at = $4, updated_at = now()
		WHERE id = $1`,
		id, files, rawOrNil(p.Manifest), p.ExpiresAt)
	if err != nil {
		return nil, errPersistence("publish workspace", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, errNotFound("workspace")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO oslab.snapshots (workspace_id, files, manifest, published_at, preview_expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workspace_id) DO UPDATE
		SET files = EXCLUDED.files, manifest = EXCLUDED.manifest,
		    published_at = EXCLUDED.published_at,
		    preview_expires_at = EXCLUDED.preview_expires_at`,
		id, files, rawOrNil(p.Manifest), p.PublishedAt, p.ExpiresAt); err != nil {
		return nil, errPersistence("write snapshot", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errPersistence("commit publish", err)
	}
	return &core.PublishedSnapshot{
		WorkspaceID:      id,
		Files:            p.Files.Clone(),
		Manifest:         p.Manifest,
		PublishedAt:      p.PublishedAt,
		PreviewExpiresAt: p.ExpiresAt,
	}, nil
}

func (s *Postgres) Unpublish(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE oslab.workspaces SET preview_enabled = false, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return errPersistence("unpublish workspace", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound("workspace")
	}
	return nil
}

func (s *Postgres) SnapshotBySlug(ctx context.Context, slug string) (*core.Workspace, *core.PublishedSnapshot, error) {
	ws, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}

	var (
		files     []byte
		manifest  []byte
		published time.Time
		expires   time.Time
	)
	err = s.pool.QueryRow(ctx, `
		SELECT files, manifest, published_at, preview_expires_at
		FROM oslab.snapshots WHERE workspace_id = $1`, ws.ID).
		Scan(&files, &manifest, &published, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return ws, nil, nil
	}
	if err != nil {
		return nil, nil, errPersistence("get snapshot", err)
	}

	snap := &core.PublishedSnapshot{
		WorkspaceID:      ws.ID,
		PublishedAt:      published,
		PreviewExpiresAt: expires,
	}
	if err := json.Unmarshal(files, &snap.Files); err != nil {
		return nil, nil, errPersistence("decode snapshot", err)
	}
	if len(manifest) > 0 {
		snap.Manifest = json.RawMessage(manifest)
	}
	return ws, snap, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// rawOrNil maps an empty RawMessage to SQL NULL.
func rawOrNil(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
