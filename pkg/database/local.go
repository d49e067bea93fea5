package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clearchoice-backend/pkg/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// LocalDatabase 本地 SQLite 数据库实现，用于开发环境与测试
type LocalDatabase struct {
	db *sql.DB
}

// NewLocalDatabase opens (and initializes) a SQLite database at path.
// An empty path falls back to ./data/clearchoice.db; ":memory:" works too.
func NewLocalDatabase(path string) (DatabaseInterface, error) {
	if path == "" {
		dataDir := "./data"
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			// 只读文件系统（如 Vercel）退回临时目录
			dataDir = filepath.Join(os.TempDir(), "clearchoice-data")
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		path = filepath.Join(dataDir, "clearchoice.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := initLocalSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LocalDatabase{db: db}, nil
}

// initLocalSchema 建表；与 scripts/init_db.sql 的 Postgres 结构保持一致
func initLocalSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			avatar TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT 'credentials',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tabs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tabs_user_title ON tabs(user_id, title);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize sqlite schema: %w", err)
		}
	}
	return nil
}

// mapSQLiteError 将引擎错误映射为存储层哨兵
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrConflict
	}
	return err
}

// stampLayout 定宽纳秒格式，保证字符串排序与时间排序一致（ORDER BY updated_at）
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nowStamp() string {
	return time.Now().UTC().Format(stampLayout)
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ================= Users =================

// CreateUser 创建用户（SQLite 侧自行生成 UUID）
func (db *LocalDatabase) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Provider == "" {
		user.Provider = "credentials"
	}
	now := nowStamp()
	_, err := db.db.Exec(
		`INSERT INTO users (id, email, password_hash, name, avatar, provider, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Password, user.Name, user.Avatar, user.Provider, now, now,
	)
	if err != nil {
		if mapSQLiteError(err) == ErrConflict {
			return ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = parseStamp(now)
	user.UpdatedAt = user.CreatedAt
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *LocalDatabase) GetUserByEmail(email string) (*models.User, error) {
	return db.getUser(`SELECT id, email, password_hash, name, avatar, provider, created_at, updated_at
		FROM users WHERE email = ?`, email)
}

// GetUserByID 根据ID获取用户
func (db *LocalDatabase) GetUserByID(id string) (*models.User, error) {
	return db.getUser(`SELECT id, email, password_hash, name, avatar, provider, created_at, updated_at
		FROM users WHERE id = ?`, id)
}

func (db *LocalDatabase) getUser(query string, arg interface{}) (*models.User, error) {
	var u models.User
	var createdAt, updatedAt string
	err := db.db.QueryRow(query, arg).Scan(
		&u.ID, &u.Email, &u.Password, &u.Name, &u.Avatar, &u.Provider, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = parseStamp(createdAt)
	u.UpdatedAt = parseStamp(updatedAt)
	return &u, nil
}

// UpdateUser 更新用户
func (db *LocalDatabase) UpdateUser(user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID is required for update")
	}
	now := nowStamp()
	_, err := db.db.Exec(
		`UPDATE users SET name = ?, avatar = ?, provider = ?, updated_at = ? WHERE id = ?`,
		user.Name, user.Avatar, user.Provider, now, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	user.UpdatedAt = parseStamp(now)
	return nil
}

// ================= Tabs =================

// CreateTab 创建 tab
func (db *LocalDatabase) CreateTab(input *models.NewTabInput) (*models.TabRecord, error) {
	blob, err := models.EncodeTabData(models.TabData{
		Questions: input.Questions,
		TextInput: input.TextInput,
		URLInput:  input.URLInput,
		FileInput: input.FileInput,
	})
	if err != nil {
		return nil, err
	}

	now := nowStamp()
	rec := &models.TabRecord{
		ID:          models.SlugFromTitle(input.Title),
		Title:       input.Title,
		UserID:      input.UserID,
		Description: input.Description,
		Data:        blob,
		CreatedAt:   parseStamp(now),
		UpdatedAt:   parseStamp(now),
	}

	_, err = db.db.Exec(
		`INSERT INTO tabs (id, title, description, user_id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Description, rec.UserID, rec.Data, now, now,
	)
	if err != nil {
		if mapSQLiteError(err) == ErrConflict {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}
	return rec, nil
}

// TabExistsWithTitle 按 (title, userID) 检查重名
func (db *LocalDatabase) TabExistsWithTitle(title, userID string) (bool, error) {
	var count int
	err := db.db.QueryRow(
		`SELECT COUNT(1) FROM tabs WHERE title = ? AND user_id = ?`,
		title, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check tab title: %w", err)
	}
	return count > 0, nil
}

// GetTabByID 按主键取原始行（data 不反序列化）
func (db *LocalDatabase) GetTabByID(id string) (*models.TabRecord, error) {
	var rec models.TabRecord
	var createdAt, updatedAt string
	err := db.db.QueryRow(
		`SELECT id, title, description, user_id, data, created_at, updated_at FROM tabs WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.Title, &rec.Description, &rec.UserID, &rec.Data, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tab: %w", err)
	}
	rec.CreatedAt = parseStamp(createdAt)
	rec.UpdatedAt = parseStamp(updatedAt)
	return &rec, nil
}

// UpdateTab 部分更新：仅覆盖补丁中出现的字段
func (db *LocalDatabase) UpdateTab(patch *models.TabPatch) (*models.TabRecord, error) {
	if strings.TrimSpace(patch.ID) == "" {
		return nil, fmt.Errorf("tab id required")
	}

	setClauses := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)

	add := func(col string, val interface{}) {
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.HasBody() {
		blob, err := models.EncodeTabData(patch.BodyData())
		if err != nil {
			return nil, err
		}
		add("data", blob)
	}
	add("updated_at", nowStamp())
	args = append(args, patch.ID)

	res, err := db.db.Exec(
		fmt.Sprintf(`UPDATE tabs SET %s WHERE id = ?`, strings.Join(setClauses, ", ")),
		args...,
	)
	if err != nil {
		if mapSQLiteError(err) == ErrConflict {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to update tab: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}

	return db.GetTabByID(patch.ID)
}

// ListTabsByUser 返回 header-only 记录，用于历史侧边栏
func (db *LocalDatabase) ListTabsByUser(userID string) ([]models.TabSummary, error) {
	rows, err := db.db.Query(
		`SELECT id, title, user_id, description, updated_at FROM tabs WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	defer rows.Close()

	var result []models.TabSummary
	for rows.Next() {
		var s models.TabSummary
		var updatedAt string
		if err := rows.Scan(&s.ID, &s.Title, &s.UserID, &s.Description, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tab summary: %w", err)
		}
		s.UpdatedAt = parseStamp(updatedAt)
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tabs: %w", err)
	}
	return result, nil
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *LocalDatabase) Close() error {
	return db.db.Close()
}
