package database

import (
	"fmt"
	"os"

	"clearchoice-backend/pkg/models"
)

// DatabaseInterface 定义数据库访问接口
type DatabaseInterface interface {
	// 用户管理
	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	UpdateUser(user *models.User) error

	// Tab 持久化
	// CreateTab computes id = slug(title), serializes the payload into the
	// opaque data column and persists header+blob. Returns ErrConflict when
	// the engine reports a duplicate id or (user_id, title) pair.
	CreateTab(input *models.NewTabInput) (*models.TabRecord, error)
	// TabExistsWithTitle 按 (title, userID) 查询是否已有同名 tab
	TabExistsWithTitle(title, userID string) (bool, error)
	// GetTabByID returns the raw stored row (header + undecoded data blob);
	// payload decoding is the consumer's responsibility, not the store's.
	GetTabByID(id string) (*models.TabRecord, error)
	// UpdateTab applies a partial patch. Header fields overwrite only when
	// present; the data column is rewritten only when the patch carries at
	// least one payload field, and then from the provided fields alone.
	UpdateTab(patch *models.TabPatch) (*models.TabRecord, error)
	// ListTabsByUser 返回侧边栏用的轻量 header 记录（不含 data）
	ListTabsByUser(userID string) ([]models.TabSummary, error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB  bool
	LocalDBPath string
	PostgresDSN string
	SupabaseURL string
	SupabaseKey string
	Debug       bool
}

// NewDatabase 根据环境与配置选择数据库实现
func NewDatabase(config DatabaseConfig) DatabaseInterface {
	// 是否在 Vercel 生产环境
	if isVercelEnvironment() {
		fmt.Printf("🧭 Detected Vercel production environment\n")

		// Vercel 优先使用 Supabase（避免 IPv6）
		if config.SupabaseURL != "" && config.SupabaseKey != "" {
			fmt.Printf("🚀  Using Supabase REST API (Vercel optimized)\n")
			return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey)
		}

		if config.PostgresDSN != "" {
			fmt.Printf("🌐  Using PostgreSQL in Vercel (may have IPv6 issues)\n")
			return NewPostgresDatabase(config.PostgresDSN)
		}

		// 未配置受支持的数据库，直接失败
		panic("No valid database configured for Vercel environment. Please set SUPABASE_URL+SUPABASE_SERVICE_KEY or POSTGRES_DSN")
	}

	// 非 Vercel 环境：PostgreSQL > Supabase > 本地 SQLite
	if config.PostgresDSN != "" {
		fmt.Printf("🗄️  Using PostgreSQL database\n")
		return NewPostgresDatabase(config.PostgresDSN)
	}

	if config.SupabaseURL != "" && config.SupabaseKey != "" {
		fmt.Printf("🧰  Using Supabase REST API\n")
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey)
	}

	if config.UseLocalDB {
		fmt.Printf("📁  Using local SQLite database\n")
		db, err := NewLocalDatabase(config.LocalDBPath)
		if err != nil {
			panic(fmt.Sprintf("Failed to open local SQLite database: %v", err))
		}
		return db
	}

	panic("No valid database configuration found. Please configure POSTGRES_DSN, SUPABASE_URL+SUPABASE_SERVICE_KEY, or USE_LOCAL_DB=true")
}

// isVercelEnvironment 内部检查 Vercel 环境
func isVercelEnvironment() bool {
	vercelEnv := os.Getenv("VERCEL_ENV")
	vercelURL := os.Getenv("VERCEL_URL")
	awsLambda := os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
	return vercelEnv != "" || vercelURL != "" || awsLambda != ""
}

// IsVercelEnvironment 检查是否在 Vercel 环境中（导出版本）
func IsVercelEnvironment() bool {
	return isVercelEnvironment()
}
