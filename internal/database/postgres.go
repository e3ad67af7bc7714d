// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	userColumns = `id, username, bio, avatar, score, posts_count, followers_count, following_count`
	postColumns = `id, user_id, content, image_url, likes, comments, score, created_at`
)

// usernameConstraint is the unique constraint Postgres names for users.username.
const usernameConstraint = "users_username_key"

var sequenceNames = map[models.Kind]string{
	models.KindUser: "user_id_seq",
	models.KindPost: "post_id_seq",
}

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresDB creates a new PostgreSQL database connection. driverName is
// "postgres" for lib/pq or "pgx" for the pgx stdlib driver.
func NewPostgresDB(driverName, connectionString string, logger *slog.Logger) (*PostgresDB, error) {
	db, err := sqlx.Connect(driverName, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Ping the database to verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("connected to PostgreSQL", "driver", driverName)

	return &PostgresDB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	p.logger.Info("closing PostgreSQL connection")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables and sequences if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	statements := []struct {
		name  string
		query string
	}{
		{"user_id_seq", `CREATE SEQUENCE IF NOT EXISTS user_id_seq`},
		{"post_id_seq", `CREATE SEQUENCE IF NOT EXISTS post_id_seq`},
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id BIGINT PRIMARY KEY,
				username VARCHAR(50) NOT NULL CONSTRAINT users_username_key UNIQUE,
				bio TEXT NOT NULL DEFAULT '',
				avatar VARCHAR(8) NOT NULL DEFAULT '1',
				score INTEGER NOT NULL DEFAULT 0,
				posts_count INTEGER NOT NULL DEFAULT 0,
				followers_count INTEGER NOT NULL DEFAULT 0,
				following_count INTEGER NOT NULL DEFAULT 0
			)`},
		{"posts", `
			CREATE TABLE IF NOT EXISTS posts (
				id BIGINT PRIMARY KEY,
				user_id BIGINT NOT NULL,
				content TEXT NOT NULL,
				image_url TEXT,
				likes INTEGER NOT NULL DEFAULT 0,
				comments INTEGER NOT NULL DEFAULT 0,
				score INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`},
		{"post_likes", `
			CREATE TABLE IF NOT EXISTS post_likes (
				post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
				user_id BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (post_id, user_id)
			)`},
		{"idx_posts_user_id", `CREATE INDEX IF NOT EXISTS idx_posts_user_id ON posts(user_id)`},
		{"idx_users_score", `CREATE INDEX IF NOT EXISTS idx_users_score ON users(score DESC, id)`},
	}

	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}

	p.logger.Info("PostgreSQL tables initialized")
	return nil
}

// isUniqueViolation recognises a violation of the named unique constraint
// from both lib/pq and pgx.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation" && pqErr.Constraint == constraint
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// NextID draws the next value from the kind's sequence.
func (p *PostgresDB) NextID(ctx context.Context, kind models.Kind) (int64, error) {
	seq, ok := sequenceNames[kind]
	if !ok {
		return 0, utils.NewValidationError("unknown entity kind %q", kind)
	}
	var id int64
	if err := p.DB.GetContext(ctx, &id, fmt.Sprintf(`SELECT nextval('%s')`, seq)); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to allocate id", err)
	}
	return id, nil
}

// advanceSequence draws from seq until it has handed out id. It only ever
// calls nextval, so a concurrent session can never be given an id twice.
// Ids obtained from NextID are already issued and cost a single read.
func (p *PostgresDB) advanceSequence(ctx context.Context, seq string, id int64) error {
	var issued int64
	query := fmt.Sprintf(`SELECT CASE WHEN is_called THEN last_value ELSE last_value - 1 END FROM %s`, seq)
	if err := p.DB.GetContext(ctx, &issued, query); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to read "+seq, err)
	}
	for issued < id {
		if err := p.DB.GetContext(ctx, &issued, fmt.Sprintf(`SELECT nextval('%s')`, seq)); err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to advance "+seq, err)
		}
	}
	return nil
}

// --- User Methods ---

// CreateUser inserts a new user row.
func (p *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :username, :bio, :avatar, :score, :posts_count, :followers_count, :following_count)
	`
	if _, err := p.DB.NamedExecContext(ctx, query, user); err != nil {
		if isUniqueViolation(err, usernameConstraint) {
			return utils.NewDuplicateUsernameError(user.Username)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	// Seeded users carry explicit ids the sequence has not issued yet.
	return p.advanceSequence(ctx, sequenceNames[models.KindUser], user.ID)
}

// GetUser fetches a user by their ID.
func (p *PostgresDB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(id)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by id", err)
	}
	return &user, nil
}

func (p *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "User not found: "+username, err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by username", err)
	}
	return &user, nil
}

// GetAllUsers fetches all users from the database.
func (p *PostgresDB) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	users := []*models.User{}
	if err := p.DB.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users`); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query all users", err)
	}
	return users, nil
}

// UpdateUser locks the user row for the duration of fn.
func (p *PostgresDB) UpdateUser(ctx context.Context, id int64, fn func(*models.User) error) (*models.User, error) {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback() // Rollback is ignored if tx is committed.

	var user models.User
	err = tx.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(id)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to lock user", err)
	}

	if err := fn(&user); err != nil {
		return nil, err
	}
	user.ID = id

	query := `
		UPDATE users SET username = :username, bio = :bio, avatar = :avatar, score = :score,
			posts_count = :posts_count, followers_count = :followers_count, following_count = :following_count
		WHERE id = :id
	`
	if _, err := tx.NamedExecContext(ctx, query, &user); err != nil {
		if isUniqueViolation(err, usernameConstraint) {
			return nil, utils.NewDuplicateUsernameError(user.Username)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to update user", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to commit user update", err)
	}
	return &user, nil
}

// --- Post Methods ---

// CreatePost inserts a new post row.
func (p *PostgresDB) CreatePost(ctx context.Context, post *models.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES (:id, :user_id, :content, :image_url, :likes, :comments, :score, :created_at)
	`
	if _, err := p.DB.NamedExecContext(ctx, query, post); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save post", err)
	}
	return p.advanceSequence(ctx, sequenceNames[models.KindPost], post.ID)
}

func (p *PostgresDB) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	err := p.DB.GetContext(ctx, &post, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewPostNotFoundError(id)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query post", err)
	}
	return &post, nil
}

// GetAllPosts retrieves every post; ordering is left to the caller.
func (p *PostgresDB) GetAllPosts(ctx context.Context) ([]*models.Post, error) {
	posts := []*models.Post{}
	if err := p.DB.SelectContext(ctx, &posts, `SELECT `+postColumns+` FROM posts`); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query all posts", err)
	}
	return posts, nil
}

// UpdatePost locks the post row for the duration of fn.
func (p *PostgresDB) UpdatePost(ctx context.Context, id int64, fn func(*models.Post) error) (*models.Post, error) {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var post models.Post
	err = tx.GetContext(ctx, &post, `SELECT `+postColumns+` FROM posts WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewPostNotFoundError(id)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to lock post", err)
	}

	if err := fn(&post); err != nil {
		return nil, err
	}
	post.ID = id

	query := `
		UPDATE posts SET content = :content, image_url = :image_url, likes = :likes,
			comments = :comments, score = :score
		WHERE id = :id
	`
	if _, err := tx.NamedExecContext(ctx, query, &post); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to update post", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to commit post update", err)
	}
	return &post, nil
}

// --- Like Methods ---

func (p *PostgresDB) AddLike(ctx context.Context, postID, userID int64) (bool, error) {
	result, err := p.DB.ExecContext(ctx,
		`INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2) ON CONFLICT (post_id, user_id) DO NOTHING`,
		postID, userID)
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to record like", err)
	}
	return changedRows(result)
}

func (p *PostgresDB) RemoveLike(ctx context.Context, postID, userID int64) (bool, error) {
	result, err := p.DB.ExecContext(ctx,
		`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to remove like", err)
	}
	return changedRows(result)
}

func (p *PostgresDB) IsLiked(ctx context.Context, postID, userID int64) (bool, error) {
	var liked bool
	err := p.DB.GetContext(ctx, &liked,
		`SELECT EXISTS (SELECT 1 FROM post_likes WHERE post_id = $1 AND user_id = $2)`, postID, userID)
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check like", err)
	}
	return liked, nil
}

func (p *PostgresDB) CountLikes(ctx context.Context, postID int64) (int, error) {
	var count int
	if err := p.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM post_likes WHERE post_id = $1`, postID); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count likes", err)
	}
	return count, nil
}

func changedRows(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to get rows affected", err)
	}
	return rowsAffected > 0, nil
}
