// Package postgres implements storage.Store on a PostgreSQL database using
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/domain/query"
	"github.com/storydesk/curation/internal/app/domain/story"
	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/filter"
	"github.com/storydesk/curation/internal/app/storage"
)

// Store is a PostgreSQL-backed implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			staff BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS publishers (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			link TEXT NOT NULL,
			hidden BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS publishers_owner_name_idx
			ON publishers (owner_id, LOWER(name))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS publishers_owner_link_idx
			ON publishers (owner_id, LOWER(link))`,
		`CREATE TABLE IF NOT EXISTS publications (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			publisher_id TEXT NOT NULL REFERENCES publishers(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			link TEXT NOT NULL,
			hidden BOOLEAN NOT NULL DEFAULT FALSE,
			published_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS publications_owner_link_idx
			ON publications (owner_id, LOWER(link))`,
		`CREATE TABLE IF NOT EXISTS stories (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_current BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS stories_owner_current_idx
			ON stories (owner_id) WHERE is_current`,
		`CREATE TABLE IF NOT EXISTS story_sources (
			story_id TEXT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
			publication_id TEXT NOT NULL REFERENCES publications(id) ON DELETE CASCADE,
			added_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (story_id, publication_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_queries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			referrer TEXT NOT NULL DEFAULT '',
			term TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS user_queries_created_idx
			ON user_queries (created_at)`,
		`CREATE TABLE IF NOT EXISTS revoked_tokens (
			jti TEXT PRIMARY KEY,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Users

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	u.ID = uuid.NewString()
	u.Email = user.NormalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, staff, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Staff, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, storage.ErrConflict
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, first_name, last_name, staff, created_at
		 FROM users WHERE id = $1`, id))
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.Email = user.NormalizeEmail(u.Email)
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = $1, password_hash = $2, first_name = $3, last_name = $4, staff = $5
		 WHERE id = $6`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Staff, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, storage.ErrConflict
		}
		return user.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, first_name, last_name, staff, created_at
		 FROM users WHERE email = $1`, user.NormalizeEmail(email)))
}

func (s *Store) scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Staff, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

// Publishers

const publisherColumns = `id, owner_id, name, link, hidden, created_at, updated_at`

func (s *Store) CreatePublisher(ctx context.Context, p publisher.Publisher) (publisher.Publisher, error) {
	p.ID = uuid.NewString()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publishers (id, owner_id, name, link, hidden, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OwnerID, p.Name, p.Link, p.Hidden, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return publisher.Publisher{}, storage.ErrConflict
		}
		return publisher.Publisher{}, err
	}
	return p, nil
}

func (s *Store) GetPublisher(ctx context.Context, ownerID, id string) (publisher.Publisher, error) {
	return scanPublisher(s.db.QueryRowContext(ctx,
		`SELECT `+publisherColumns+` FROM publishers WHERE id = $1 AND owner_id = $2`, id, ownerID))
}

func (s *Store) GetPublisherByName(ctx context.Context, ownerID, name string) (publisher.Publisher, error) {
	return scanPublisher(s.db.QueryRowContext(ctx,
		`SELECT `+publisherColumns+` FROM publishers
		 WHERE owner_id = $1 AND LOWER(name) = LOWER($2)`, ownerID, name))
}

func scanPublisher(row *sql.Row) (publisher.Publisher, error) {
	var p publisher.Publisher
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Link, &p.Hidden, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return publisher.Publisher{}, storage.ErrNotFound
	}
	if err != nil {
		return publisher.Publisher{}, err
	}
	return p, nil
}

func (s *Store) ListPublishers(ctx context.Context, ownerID string, f filter.Publisher) ([]publisher.Publisher, int, error) {
	where := []string{"p.owner_id = $1"}
	args := []interface{}{ownerID}
	if f.Hidden != nil {
		args = append(args, *f.Hidden)
		where = append(where, fmt.Sprintf("p.hidden = $%d", len(args)))
	}
	if f.NameContains != "" {
		args = append(args, "%"+f.NameContains+"%")
		where = append(where, fmt.Sprintf("LOWER(p.name) LIKE $%d", len(args)))
	}
	if f.WebsiteDomain != "" {
		args = append(args, "%//"+f.WebsiteDomain+"%")
		where = append(where, fmt.Sprintf("LOWER(p.link) LIKE $%d", len(args)))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		where = append(where, fmt.Sprintf("p.created_at >= $%d", len(args)))
	}
	if f.CreatedBefore != nil {
		args = append(args, *f.CreatedBefore)
		where = append(where, fmt.Sprintf("p.created_at <= $%d", len(args)))
	}
	for _, tok := range f.SearchTokens {
		args = append(args, "%"+tok+"%")
		where = append(where, fmt.Sprintf(
			"(LOWER(p.name) LIKE $%d OR LOWER(p.link) LIKE $%d)", len(args), len(args)))
	}
	having := []string{}
	if f.MinPublications > 0 {
		args = append(args, f.MinPublications)
		having = append(having, fmt.Sprintf("COUNT(pub.id) >= $%d", len(args)))
	}
	if f.MaxPublications != nil {
		args = append(args, *f.MaxPublications)
		having = append(having, fmt.Sprintf("COUNT(pub.id) <= $%d", len(args)))
	}
	if f.HasPublications != nil {
		if *f.HasPublications {
			having = append(having, "COUNT(pub.id) > 0")
		} else {
			having = append(having, "COUNT(pub.id) = 0")
		}
	}

	base := `FROM publishers p
		 LEFT JOIN publications pub ON pub.publisher_id = p.id
		 WHERE ` + strings.Join(where, " AND ") + `
		 GROUP BY p.id, p.owner_id, p.name, p.link, p.hidden, p.created_at, p.updated_at`
	if len(having) > 0 {
		base += " HAVING " + strings.Join(having, " AND ")
	}

	countQuery := `SELECT COUNT(*) FROM (SELECT p.id ` + base + `) sub`
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := publisherOrderSQL(f.Ordering)
	listQuery := `SELECT p.id, p.owner_id, p.name, p.link, p.hidden, p.created_at, p.updated_at ` +
		base + ` ORDER BY ` + order
	listArgs := args
	if f.Page.Limit > 0 {
		listArgs = append(listArgs, f.Page.Limit, f.Page.Offset)
		listQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(listArgs)-1, len(listArgs))
	}

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []publisher.Publisher
	for rows.Next() {
		var p publisher.Publisher
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Link, &p.Hidden, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func publisherOrderSQL(ordering string) string {
	switch ordering {
	case "-name":
		return "LOWER(p.name) DESC"
	case "created_at":
		return "p.created_at ASC"
	case "-created_at":
		return "p.created_at DESC"
	default:
		return "LOWER(p.name) ASC"
	}
}

func (s *Store) UpdatePublisher(ctx context.Context, p publisher.Publisher) (publisher.Publisher, error) {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE publishers SET name = $1, link = $2, hidden = $3, updated_at = $4
		 WHERE id = $5 AND owner_id = $6`,
		p.Name, p.Link, p.Hidden, p.UpdatedAt, p.ID, p.OwnerID)
	if err != nil {
		if isUniqueViolation(err) {
			return publisher.Publisher{}, storage.ErrConflict
		}
		return publisher.Publisher{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return publisher.Publisher{}, storage.ErrNotFound
	}
	return s.GetPublisher(ctx, p.OwnerID, p.ID)
}

func (s *Store) DeletePublisher(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM publishers WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) PublisherStats(ctx context.Context, ownerID, id string) (publisher.Stats, error) {
	if _, err := s.GetPublisher(ctx, ownerID, id); err != nil {
		return publisher.Stats{}, err
	}
	var stats publisher.Stats
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT hidden), MAX(published_at)
		 FROM publications WHERE publisher_id = $1`, id).
		Scan(&stats.PublicationCount, &stats.VisiblePublicationCount, &latest)
	if err != nil {
		return publisher.Stats{}, err
	}
	if latest.Valid {
		at := latest.Time
		stats.LatestPublicationAt = &at
	}
	return stats, nil
}

// Publications

const publicationColumns = `p.id, p.owner_id, p.publisher_id, p.title, p.link, p.hidden,
	p.published_at, p.created_at, p.updated_at, pub.name, pub.hidden`

func (s *Store) CreatePublication(ctx context.Context, p publication.Publication) (publication.Publication, error) {
	parent, err := s.GetPublisher(ctx, p.OwnerID, p.PublisherID)
	if err != nil {
		return publication.Publication{}, err
	}
	p.ID = uuid.NewString()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO publications (id, owner_id, publisher_id, title, link, hidden, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.OwnerID, p.PublisherID, p.Title, p.Link, p.Hidden, p.PublishedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return publication.Publication{}, storage.ErrConflict
		}
		return publication.Publication{}, err
	}
	p.PublisherName = parent.Name
	p.PublisherHidden = parent.Hidden
	return p, nil
}

func (s *Store) GetPublication(ctx context.Context, ownerID, id string) (publication.Publication, error) {
	return scanPublication(s.db.QueryRowContext(ctx,
		`SELECT `+publicationColumns+`
		 FROM publications p JOIN publishers pub ON pub.id = p.publisher_id
		 WHERE p.id = $1 AND p.owner_id = $2`, id, ownerID))
}

func (s *Store) GetPublicationByLink(ctx context.Context, ownerID, link string) (publication.Publication, error) {
	return scanPublication(s.db.QueryRowContext(ctx,
		`SELECT `+publicationColumns+`
		 FROM publications p JOIN publishers pub ON pub.id = p.publisher_id
		 WHERE p.owner_id = $1 AND LOWER(p.link) = LOWER($2)`, ownerID, link))
}

func scanPublication(row *sql.Row) (publication.Publication, error) {
	var p publication.Publication
	var published sql.NullTime
	err := row.Scan(&p.ID, &p.OwnerID, &p.PublisherID, &p.Title, &p.Link, &p.Hidden,
		&published, &p.CreatedAt, &p.UpdatedAt, &p.PublisherName, &p.PublisherHidden)
	if errors.Is(err, sql.ErrNoRows) {
		return publication.Publication{}, storage.ErrNotFound
	}
	if err != nil {
		return publication.Publication{}, err
	}
	if published.Valid {
		p.PublishedAt = &published.Time
	}
	return p, nil
}

func (s *Store) ListPublications(ctx context.Context, ownerID string, f filter.Publication) ([]publication.Publication, int, error) {
	where := []string{"p.owner_id = $1"}
	args := []interface{}{ownerID}
	if f.Hidden != nil {
		args = append(args, *f.Hidden)
		where = append(where, fmt.Sprintf("p.hidden = $%d", len(args)))
	}
	if f.PublisherHid != nil {
		args = append(args, *f.PublisherHid)
		where = append(where, fmt.Sprintf("pub.hidden = $%d", len(args)))
	}
	if f.PublisherID != "" {
		args = append(args, f.PublisherID)
		where = append(where, fmt.Sprintf("p.publisher_id = $%d", len(args)))
	}
	if len(f.SourceNames) > 0 {
		args = append(args, pq.Array(f.SourceNames))
		where = append(where, fmt.Sprintf("LOWER(pub.name) = ANY($%d)", len(args)))
	}
	if f.TitleContains != "" {
		args = append(args, "%"+f.TitleContains+"%")
		where = append(where, fmt.Sprintf("LOWER(p.title) LIKE $%d", len(args)))
	}
	if f.DaysOld > 0 {
		args = append(args, time.Now().UTC().AddDate(0, 0, -f.DaysOld))
		where = append(where, fmt.Sprintf("p.published_at >= $%d", len(args)))
	}
	if f.Start != nil {
		args = append(args, *f.Start)
		where = append(where, fmt.Sprintf("p.published_at::date >= ($%d)::date", len(args)))
	}
	if f.End != nil {
		args = append(args, *f.End)
		where = append(where, fmt.Sprintf("p.published_at::date <= ($%d)::date", len(args)))
	}
	if f.PublishedAfter != nil {
		args = append(args, *f.PublishedAfter)
		where = append(where, fmt.Sprintf("p.published_at >= $%d", len(args)))
	}
	if f.PublishedBefore != nil {
		args = append(args, *f.PublishedBefore)
		where = append(where, fmt.Sprintf("p.published_at <= $%d", len(args)))
	}
	if f.LinkDomain != "" {
		args = append(args, "%//"+f.LinkDomain+"%")
		where = append(where, fmt.Sprintf("LOWER(p.link) LIKE $%d", len(args)))
	}
	for _, tok := range f.SearchTokens {
		args = append(args, "%"+tok+"%")
		where = append(where, fmt.Sprintf(
			"(LOWER(p.title) LIKE $%d OR LOWER(p.link) LIKE $%d OR LOWER(pub.name) LIKE $%d)",
			len(args), len(args), len(args)))
	}

	base := `FROM publications p JOIN publishers pub ON pub.id = p.publisher_id
		 WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) `+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + publicationColumns + ` ` + base + ` ORDER BY ` + publicationOrderSQL(f.Ordering)
	listArgs := args
	if f.Page.Limit > 0 {
		listArgs = append(listArgs, f.Page.Limit, f.Page.Offset)
		listQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(listArgs)-1, len(listArgs))
	}

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []publication.Publication
	for rows.Next() {
		var p publication.Publication
		var published sql.NullTime
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.PublisherID, &p.Title, &p.Link, &p.Hidden,
			&published, &p.CreatedAt, &p.UpdatedAt, &p.PublisherName, &p.PublisherHidden); err != nil {
			return nil, 0, err
		}
		if published.Valid {
			at := published.Time
			p.PublishedAt = &at
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func publicationOrderSQL(ordering string) string {
	switch ordering {
	case "published_at":
		return "p.published_at ASC NULLS FIRST"
	case "title":
		return "LOWER(p.title) ASC"
	case "-title":
		return "LOWER(p.title) DESC"
	case "created_at":
		return "p.created_at ASC"
	case "-created_at":
		return "p.created_at DESC"
	default:
		return "p.published_at DESC NULLS LAST"
	}
}

func (s *Store) UpdatePublication(ctx context.Context, p publication.Publication) (publication.Publication, error) {
	if _, err := s.GetPublisher(ctx, p.OwnerID, p.PublisherID); err != nil {
		return publication.Publication{}, err
	}
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE publications SET publisher_id = $1, title = $2, link = $3, hidden = $4,
			published_at = $5, updated_at = $6
		 WHERE id = $7 AND owner_id = $8`,
		p.PublisherID, p.Title, p.Link, p.Hidden, p.PublishedAt, p.UpdatedAt, p.ID, p.OwnerID)
	if err != nil {
		if isUniqueViolation(err) {
			return publication.Publication{}, storage.ErrConflict
		}
		return publication.Publication{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return publication.Publication{}, storage.ErrNotFound
	}
	return s.GetPublication(ctx, p.OwnerID, p.ID)
}

func (s *Store) DeletePublication(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM publications WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Stories

func (s *Store) CreateStory(ctx context.Context, st story.Story) (story.Story, error) {
	st.ID = uuid.NewString()
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now
	st.IsCurrent = false
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stories (id, owner_id, title, description, is_current, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		st.ID, st.OwnerID, st.Title, st.Description, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return story.Story{}, err
	}
	st.SourceIDs = nil
	return st, nil
}

func (s *Store) GetStory(ctx context.Context, ownerID, id string) (story.Story, error) {
	st, err := scanStory(s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, description, is_current, created_at, updated_at
		 FROM stories WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if err != nil {
		return story.Story{}, err
	}
	return s.attachSources(ctx, st)
}

func (s *Store) GetCurrentStory(ctx context.Context, ownerID string) (story.Story, error) {
	st, err := scanStory(s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, description, is_current, created_at, updated_at
		 FROM stories WHERE owner_id = $1 AND is_current`, ownerID))
	if err != nil {
		return story.Story{}, err
	}
	return s.attachSources(ctx, st)
}

func scanStory(row *sql.Row) (story.Story, error) {
	var st story.Story
	err := row.Scan(&st.ID, &st.OwnerID, &st.Title, &st.Description, &st.IsCurrent, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return story.Story{}, storage.ErrNotFound
	}
	if err != nil {
		return story.Story{}, err
	}
	return st, nil
}

func (s *Store) attachSources(ctx context.Context, st story.Story) (story.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT publication_id FROM story_sources WHERE story_id = $1 ORDER BY added_at`, st.ID)
	if err != nil {
		return story.Story{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return story.Story{}, err
		}
		st.SourceIDs = append(st.SourceIDs, id)
	}
	return st, rows.Err()
}

func (s *Store) ListStories(ctx context.Context, ownerID string) ([]story.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, description, is_current, created_at, updated_at
		 FROM stories WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []story.Story
	for rows.Next() {
		var st story.Story
		if err := rows.Scan(&st.ID, &st.OwnerID, &st.Title, &st.Description, &st.IsCurrent, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i], err = s.attachSources(ctx, out[i])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) UpdateStory(ctx context.Context, st story.Story) (story.Story, error) {
	st.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE stories SET title = $1, description = $2, updated_at = $3
		 WHERE id = $4 AND owner_id = $5`,
		st.Title, st.Description, st.UpdatedAt, st.ID, st.OwnerID)
	if err != nil {
		return story.Story{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return story.Story{}, storage.ErrNotFound
	}
	return s.GetStory(ctx, st.OwnerID, st.ID)
}

func (s *Store) DeleteStory(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM stories WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SetCurrentStory(ctx context.Context, ownerID, id string) (story.Story, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return story.Story{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE stories SET is_current = FALSE WHERE owner_id = $1 AND is_current`, ownerID); err != nil {
		return story.Story{}, err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE stories SET is_current = TRUE, updated_at = $1 WHERE id = $2 AND owner_id = $3`,
		time.Now().UTC(), id, ownerID)
	if err != nil {
		return story.Story{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return story.Story{}, storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return story.Story{}, err
	}
	return s.GetStory(ctx, ownerID, id)
}

func (s *Store) AddStorySource(ctx context.Context, ownerID, storyID, publicationID string) (story.Story, error) {
	if _, err := s.GetPublication(ctx, ownerID, publicationID); err != nil {
		return story.Story{}, err
	}
	if _, err := s.GetStory(ctx, ownerID, storyID); err != nil {
		return story.Story{}, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO story_sources (story_id, publication_id, added_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		storyID, publicationID, time.Now().UTC())
	if err != nil {
		return story.Story{}, err
	}
	return s.GetStory(ctx, ownerID, storyID)
}

func (s *Store) RemoveStorySource(ctx context.Context, ownerID, storyID, publicationID string) (story.Story, error) {
	if _, err := s.GetStory(ctx, ownerID, storyID); err != nil {
		return story.Story{}, err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM story_sources WHERE story_id = $1 AND publication_id = $2`,
		storyID, publicationID)
	if err != nil {
		return story.Story{}, err
	}
	return s.GetStory(ctx, ownerID, storyID)
}

// Queries

func (s *Store) RecordQuery(ctx context.Context, rec query.Record) error {
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_queries (id, user_id, referrer, term, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.UserID, rec.Referrer, rec.Term, rec.CreatedAt)
	return err
}

func (s *Store) ListQueriesSince(ctx context.Context, since time.Time) ([]query.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, referrer, term, created_at FROM user_queries
		 WHERE created_at >= $1 ORDER BY created_at DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []query.Record
	for rows.Next() {
		var rec query.Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Referrer, &rec.Term, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Tokens

func (s *Store) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
		 ON CONFLICT (jti) DO NOTHING`, jti, expiresAt)
	return err
}

func (s *Store) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&revoked)
	return revoked, err
}
