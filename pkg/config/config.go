package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置
	UseLocalDB  bool
	LocalDBPath string
	PostgresDSN string
	SupabaseURL string
	SupabaseKey string

	// JWT配置
	JWTSecret string

	// OAuth配置
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	OAuthRedirectURI   string
	BaseURL            string // 基础URL，用于构建回调URL

	// CORS配置
	AllowedOrigins []string

	// 调试配置
	Debug bool
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() *Config {
	// 根据环境加载对应的 .env 文件
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development" // 默认开发环境
	}

	// 按优先级加载环境文件；不存在时静默跳过，已有变量不覆盖
	switch env {
	case "production":
		_ = godotenv.Load(".env.production")
	default:
		_ = godotenv.Load(".env.local")
	}
	_ = godotenv.Load()

	config := &Config{
		// 默认值
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		Port:        getEnvWithDefault("PORT", "3000"),
		UseLocalDB:  getEnvBool("USE_LOCAL_DB", true),
		LocalDBPath: getEnvTrimmed("LOCAL_DB_PATH"),
		JWTSecret:   getEnvWithDefault("JWT_SECRET", "your-secret-key-change-in-production"),
		Debug:       getEnvBool("DEBUG", false),
	}

	// 数据库配置
	config.PostgresDSN = getEnvTrimmed("POSTGRES_DSN")
	config.SupabaseURL = getEnvTrimmed("SUPABASE_URL")
	config.SupabaseKey = getEnvTrimmed("SUPABASE_SERVICE_KEY")

	// OAuth配置
	config.GoogleClientID = getEnvTrimmed("GOOGLE_CLIENT_ID")
	config.GoogleClientSecret = getEnvTrimmed("GOOGLE_CLIENT_SECRET")
	config.GitHubClientID = getEnvTrimmed("GITHUB_CLIENT_ID")
	config.GitHubClientSecret = getEnvTrimmed("GITHUB_CLIENT_SECRET")
	config.OAuthRedirectURI = getEnvTrimmed("OAUTH_REDIRECT_URI")
	config.BaseURL = getEnvTrimmed("BASE_URL")

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		config.AllowedOrigins = strings.Split(allowedOrigins, ",")
	}

	// 环境特定配置
	if config.Environment == "production" {
		// 生产环境强制使用外部数据库（PostgreSQL或Supabase）
		if config.PostgresDSN != "" || (config.SupabaseURL != "" && config.SupabaseKey != "") {
			config.UseLocalDB = false
		} else {
			fmt.Println("⚠️  WARNING: Production environment using local database. Please configure POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_KEY")
		}
		// 生产环境关闭调试
		config.Debug = false
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	// 验证端口
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// 验证JWT密钥
	if c.JWTSecret == "" || c.JWTSecret == "your-secret-key-change-in-production" {
		if c.Environment == "production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Environment == "development" {
			fmt.Println("⚠️  Using default JWT secret (not recommended for production)")
		}
	}

	// 验证数据库配置
	if c.UseLocalDB {
		// 使用本地SQLite数据库，无需额外验证
	} else if c.PostgresDSN != "" {
		// 使用PostgreSQL，无需额外验证
	} else if c.SupabaseURL != "" && c.SupabaseKey != "" {
		// 使用Supabase，无需额外验证
	} else {
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或 SUPABASE_URL+SUPABASE_SERVICE_KEY")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvTrimmed 获取环境变量并去除首尾空白（.env 文件常带换行）
func getEnvTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
