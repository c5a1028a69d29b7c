package data

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tmail/internal/biz"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect 区分 SQL 方言
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var _ biz.TokenRepo = (*sqlTokenRepo)(nil)

// sqlTokenRepo SQL 实现的令牌仓库（sqlite / postgres）
type sqlTokenRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLiteTokenRepo 创建 SQLite 令牌仓库
func NewSQLiteTokenRepo(dbPath string) (biz.TokenRepo, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite 只允许单个写连接
	db.SetMaxOpenConns(1)

	return newSQLTokenRepo(db, DialectSQLite)
}

// NewPostgresTokenRepo 创建 Postgres 令牌仓库
func NewPostgresTokenRepo(dsn string) (biz.TokenRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLTokenRepo(db, DialectPostgres)
}

func newSQLTokenRepo(db *sql.DB, dialect Dialect) (*sqlTokenRepo, error) {
	r := &sqlTokenRepo{db: db, dialect: dialect}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *sqlTokenRepo) migrate() error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.dialect == DialectPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}

	// 创建 user_ids 表，只用于分配自增用户 ID
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS user_ids (
			` + idColumn + `,
			created_at BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create user_ids table: %w", err)
	}

	// 创建 api_tokens 表，令牌只保存哈希
	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS api_tokens (
			token_hash TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			avatar_url TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT 'default',
			issued_at BIGINT NOT NULL,
			last_used_at BIGINT NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create api_tokens table: %w", err)
	}

	_, err = r.db.Exec("CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id)")
	if err != nil {
		return fmt.Errorf("failed to create api_tokens index: %w", err)
	}
	return nil
}

// rebind 把 ? 占位符转换为 postgres 的 $n
func (r *sqlTokenRepo) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// NextUserID 分配新的用户 ID
func (r *sqlTokenRepo) NextUserID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		r.rebind("INSERT INTO user_ids (created_at) VALUES (?) RETURNING id"),
		time.Now().Unix(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate user id: %w", err)
	}
	return id, nil
}

// Insert 写入令牌记录和用户资料（单条语句，原子）
func (r *sqlTokenRepo) Insert(ctx context.Context, rec *biz.TokenRecord, profile *biz.UserProfile) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO api_tokens (token_hash, user_id, username, email, avatar_url, name, issued_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (token_hash) DO NOTHING
	`), hashToken(rec.Token), rec.UserID, profile.Username, profile.Email, profile.AvatarURL,
		tokenName(rec), rec.IssuedAt.UnixMicro(), unixMicroOrZero(rec.LastUsedAt))
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	if n == 0 {
		return biz.ErrTokenExists
	}
	return nil
}

// Lookup 查询令牌
func (r *sqlTokenRepo) Lookup(ctx context.Context, token string) (*biz.TokenRecord, *biz.UserProfile, error) {
	var (
		profile    biz.UserProfile
		name       string
		issuedAt   int64
		lastUsedAt int64
	)
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT user_id, username, email, avatar_url, name, issued_at, last_used_at
		FROM api_tokens WHERE token_hash = ?
	`), hashToken(token)).Scan(&profile.ID, &profile.Username, &profile.Email, &profile.AvatarURL, &name, &issuedAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, biz.ErrTokenNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query token: %w", err)
	}

	rec := &biz.TokenRecord{
		Token:      token,
		Name:       name,
		UserID:     profile.ID,
		IssuedAt:   time.UnixMicro(issuedAt).UTC(),
		LastUsedAt: timeFromMicro(lastUsedAt),
	}
	return rec, &profile, nil
}

// Touch 更新令牌最近使用时间
func (r *sqlTokenRepo) Touch(ctx context.Context, token string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		r.rebind("UPDATE api_tokens SET last_used_at = ? WHERE token_hash = ?"),
		at.UnixMicro(), hashToken(token),
	)
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	if n == 0 {
		return biz.ErrTokenNotFound
	}
	return nil
}

// Close 关闭数据库连接
func (r *sqlTokenRepo) Close() error {
	return r.db.Close()
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func tokenName(rec *biz.TokenRecord) string {
	if rec.Name == "" {
		return biz.DefaultTokenName
	}
	return rec.Name
}

// 0 表示从未使用
func unixMicroOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func timeFromMicro(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

// Ping 检查数据库连通性
func (r *sqlTokenRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
