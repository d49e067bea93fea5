package database

import "errors"

// 统一的存储层错误哨兵，供各数据库实现映射引擎错误
var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrConflict 唯一约束冲突（重复的 tab id 或 title+user）
	ErrConflict = errors.New("duplicate record")
)

// IsNotFound reports whether err maps to a missing record
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err maps to a uniqueness violation
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
