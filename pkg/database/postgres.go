package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clearchoice-backend/pkg/models"

	"github.com/lib/pq"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) DatabaseInterface {
	// 尝试多种连接策略来解决Vercel Lambda的IPv6问题
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "prefer_simple_protocol=true"),
		addConnectionParams(dsn, "prefer_simple_protocol=true&connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&prefer_simple_protocol=true"),
		dsn, // 最后尝试原始DSN
	}

	var db *sql.DB
	var err error

	for i, strategy := range strategies {
		fmt.Printf("🔄 Trying connection strategy %d...\n", i+1)

		db, err = sql.Open("postgres", strategy)
		if err != nil {
			fmt.Printf("❌ Strategy %d failed to open: %v\n", i+1, err)
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		// 测试连接
		if err = db.Ping(); err != nil {
			fmt.Printf("❌ Strategy %d failed to ping: %v\n", i+1, err)
			db.Close()
			continue
		}

		fmt.Printf("✅ PostgreSQL connection established successfully with strategy %d\n", i+1)
		return &PostgresDatabase{db: db}
	}

	// 所有策略都失败了
	panic(fmt.Sprintf("Failed to connect to PostgreSQL with all strategies. Last error: %v", err))
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// mapPGError 将引擎错误映射为存储层哨兵
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		// unique_violation：重复的 tab id 或 (user_id, title)
		return ErrConflict
	}
	return err
}

// ================= Users =================

// CreateUser 创建用户
func (db *PostgresDatabase) CreateUser(user *models.User) error {
	if user.Provider == "" {
		user.Provider = "credentials"
	}
	query := `
        INSERT INTO public.users (email, password_hash, name, avatar, provider, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	err := db.db.QueryRow(query, user.Email, user.Password, user.Name, user.Avatar, user.Provider).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if mapped := mapPGError(err); mapped == ErrConflict {
			return ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *PostgresDatabase) GetUserByEmail(email string) (*models.User, error) {
	query := `
        SELECT id, email, COALESCE(name,''), COALESCE(avatar,''), COALESCE(provider,'credentials'),
               COALESCE(password_hash,''), created_at, updated_at
        FROM public.users
        WHERE email = $1
    `
	var u models.User
	err := db.db.QueryRow(query, email).Scan(
		&u.ID, &u.Email, &u.Name, &u.Avatar, &u.Provider, &u.Password, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

// GetUserByID 根据ID获取用户
func (db *PostgresDatabase) GetUserByID(id string) (*models.User, error) {
	query := `
        SELECT id, email, COALESCE(name,''), COALESCE(avatar,''), COALESCE(provider,'credentials'),
               created_at, updated_at
        FROM public.users
        WHERE id = $1
    `
	var u models.User
	err := db.db.QueryRow(query, id).Scan(
		&u.ID, &u.Email, &u.Name, &u.Avatar, &u.Provider, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdateUser 更新用户
func (db *PostgresDatabase) UpdateUser(user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID is required for update")
	}
	query := `
        UPDATE public.users
        SET name = $1,
            avatar = $2,
            provider = COALESCE($3, provider),
            updated_at = NOW()
        WHERE id = $4
    `
	_, err := db.db.Exec(query, user.Name, user.Avatar, nullIfEmpty(user.Provider), user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// ================= Tabs =================

// CreateTab 创建 tab：id 由标题 slug 派生，payload 序列化进 data 列
func (db *PostgresDatabase) CreateTab(input *models.NewTabInput) (*models.TabRecord, error) {
	blob, err := models.EncodeTabData(models.TabData{
		Questions: input.Questions,
		TextInput: input.TextInput,
		URLInput:  input.URLInput,
		FileInput: input.FileInput,
	})
	if err != nil {
		return nil, err
	}

	rec := &models.TabRecord{
		ID:          models.SlugFromTitle(input.Title),
		Title:       input.Title,
		UserID:      input.UserID,
		Description: input.Description,
		Data:        blob,
	}

	query := `
        INSERT INTO tabs (id, title, description, user_id, data, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	err = db.db.QueryRow(query, rec.ID, rec.Title, rec.Description, rec.UserID, rec.Data).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if mapped := mapPGError(err); mapped == ErrConflict {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}

	fmt.Printf("💾 Created tab '%s' for user %s\n", rec.ID, rec.UserID)
	return rec, nil
}

// TabExistsWithTitle 按 (title, userID) 检查重名
func (db *PostgresDatabase) TabExistsWithTitle(title, userID string) (bool, error) {
	var exists bool
	err := db.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM tabs WHERE title = $1 AND user_id = $2)`,
		title, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tab title: %w", err)
	}
	return exists, nil
}

// GetTabByID 按主键取原始行（data 不反序列化）
func (db *PostgresDatabase) GetTabByID(id string) (*models.TabRecord, error) {
	query := `
        SELECT id, title, COALESCE(description,''), user_id, COALESCE(data,''), created_at, updated_at
        FROM tabs
        WHERE id = $1
    `
	var rec models.TabRecord
	err := db.db.QueryRow(query, id).Scan(
		&rec.ID, &rec.Title, &rec.Description, &rec.UserID, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tab: %w", err)
	}
	return &rec, nil
}

// UpdateTab 部分更新：仅覆盖补丁中出现的字段
func (db *PostgresDatabase) UpdateTab(patch *models.TabPatch) (*models.TabRecord, error) {
	if strings.TrimSpace(patch.ID) == "" {
		return nil, fmt.Errorf("tab id required")
	}

	// Build dynamic SET clause safely
	setClauses := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)
	idx := 1

	add := func(col string, val interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s=$%d", col, idx))
		args = append(args, val)
		idx++
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.HasBody() {
		// data 列整体重写，仅包含补丁给出的 payload 字段
		blob, err := models.EncodeTabData(patch.BodyData())
		if err != nil {
			return nil, err
		}
		add("data", blob)
	}

	// Always bump updated_at
	setClauses = append(setClauses, "updated_at=NOW()")
	args = append(args, patch.ID)

	query := fmt.Sprintf(`
        UPDATE tabs SET %s WHERE id=$%d
        RETURNING id, title, COALESCE(description,''), user_id, COALESCE(data,''), created_at, updated_at
    `, strings.Join(setClauses, ", "), idx)

	var rec models.TabRecord
	err := db.db.QueryRow(query, args...).Scan(
		&rec.ID, &rec.Title, &rec.Description, &rec.UserID, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if mapped := mapPGError(err); mapped == ErrConflict {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to update tab: %w", err)
	}
	return &rec, nil
}

// ListTabsByUser 返回 header-only 记录，用于历史侧边栏
func (db *PostgresDatabase) ListTabsByUser(userID string) ([]models.TabSummary, error) {
	query := `
        SELECT id, title, user_id, COALESCE(description,''), updated_at
        FROM tabs
        WHERE user_id = $1
        ORDER BY updated_at DESC
    `
	rows, err := db.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	defer rows.Close()

	var result []models.TabSummary
	for rows.Next() {
		var s models.TabSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.UserID, &s.Description, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tab summary: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tabs: %w", err)
	}
	return result, nil
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
