package database

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// connectionTTL 连接最大复用时长，超过后强制重建
const connectionTTL = 30 * time.Minute

// idleTimeout 空闲超时，后台清理使用
const idleTimeout = 10 * time.Minute

// cachedConnection 缓存的数据库连接（serverless 冷启动之间复用）
type cachedConnection struct {
	instance  DatabaseInterface
	configKey string
	createdAt time.Time
	lastUsed  time.Time
}

var (
	cached      *cachedConnection
	cacheMu     sync.Mutex
	cleanupOnce sync.Once
)

// GetDatabase 获取数据库连接，配置未变且连接健康时复用缓存
func GetDatabase(config DatabaseConfig) DatabaseInterface {
	key := configFingerprint(config)

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached != nil && !cached.stale(key) {
		cached.lastUsed = time.Now()
		fmt.Printf("♻️  Reusing cached database connection (key: %s)\n", key[:8])
		return cached.instance
	}

	// 关闭旧连接（如果存在）
	if cached != nil && cached.instance != nil {
		cached.instance.Close()
	}

	fmt.Printf("🔄 Creating database connection (key: %s)\n", key[:8])
	now := time.Now()
	cached = &cachedConnection{
		instance:  NewDatabase(config),
		configKey: key,
		createdAt: now,
		lastUsed:  now,
	}

	// 长驻进程才值得后台清理，Vercel 函数随时会被冻结
	if !isVercelEnvironment() {
		cleanupOnce.Do(func() {
			go func() {
				for range time.Tick(idleTimeout) {
					CleanupIdleConnections()
				}
			}()
		})
	}

	return cached.instance
}

// stale 判断缓存连接是否需要重建
func (c *cachedConnection) stale(key string) bool {
	if c.instance == nil {
		return true
	}
	if c.configKey != key {
		fmt.Printf("🔄 Database configuration changed, recreating connection\n")
		return true
	}
	if time.Since(c.createdAt) > connectionTTL {
		fmt.Printf("⏰ Database connection expired, recreating\n")
		return true
	}
	if err := c.instance.HealthCheck(); err != nil {
		fmt.Printf("❌ Database health check failed, recreating: %v\n", err)
		return true
	}
	return false
}

// configFingerprint 生成配置的唯一键，避免在日志里泄露凭据
func configFingerprint(config DatabaseConfig) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%t|%s|%s|%s|%s",
		config.UseLocalDB,
		config.LocalDBPath,
		config.PostgresDSN,
		config.SupabaseURL,
		config.SupabaseKey,
	)
	return fmt.Sprintf("%016x", h.Sum64())
}

// CleanupIdleConnections 清理空闲连接
func CleanupIdleConnections() {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached == nil || time.Since(cached.lastUsed) <= idleTimeout {
		return
	}

	fmt.Printf("🧹 Closing idle database connection\n")
	if cached.instance != nil {
		cached.instance.Close()
	}
	cached = nil
}

// GetConnectionStats 连接缓存统计信息，暴露给 debug 端点
func GetConnectionStats() map[string]interface{} {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached == nil {
		return map[string]interface{}{
			"status": "no_connection",
		}
	}

	return map[string]interface{}{
		"status":     "connected",
		"config_key": cached.configKey[:8],
		"created_at": cached.createdAt.Format(time.RFC3339),
		"last_used":  cached.lastUsed.Format(time.RFC3339),
		"age":        time.Since(cached.createdAt).String(),
	}
}
