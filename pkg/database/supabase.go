package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clearchoice-backend/pkg/models"
)

// SupabaseDatabase Supabase数据库实现（PostgREST）
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseDatabase 创建Supabase数据库实例
func NewSupabaseDatabase(rawURL, key string) DatabaseInterface {
	// 确保URL格式正确
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "https://" + rawURL
	}

	return &SupabaseDatabase{
		baseURL: rawURL,
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// restError 携带 PostgREST 状态码，用于冲突/缺失判定
type restError struct {
	status int
	body   string
}

func (e *restError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.status, e.body)
}

// mapRESTError 将 PostgREST 错误映射为存储层哨兵
func mapRESTError(err error) error {
	var re *restError
	if !errors.As(err, &re) {
		return err
	}
	// 23505 唯一约束；部分部署只回 409
	if re.status == http.StatusConflict || strings.Contains(re.body, "23505") {
		return ErrConflict
	}
	if re.status == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}

// makeRequest 发送HTTP请求到Supabase
func (db *SupabaseDatabase) makeRequest(method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	reqURL := db.baseURL + "/rest/v1" + endpoint
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 设置请求头
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &restError{status: resp.StatusCode, body: string(respBody)}
	}

	return respBody, nil
}

// ================= Users =================

// CreateUser 创建用户 - 不包含id字段，让PostgreSQL自动生成UUID
func (db *SupabaseDatabase) CreateUser(user *models.User) error {
	if user.Provider == "" {
		user.Provider = "credentials"
	}
	now := time.Now().UTC()
	userData := map[string]interface{}{
		"email":         user.Email,
		"password_hash": user.Password,
		"name":          user.Name,
		"avatar":        user.Avatar,
		"provider":      user.Provider,
		"created_at":    now.Format(time.RFC3339),
		"updated_at":    now.Format(time.RFC3339),
	}

	data, err := db.makeRequest("POST", "/users", userData)
	if err != nil {
		return mapRESTError(err)
	}

	// 解析返回的数据以获取生成的ID
	if len(data) > 0 {
		var users []map[string]interface{}
		if err := json.Unmarshal(data, &users); err == nil && len(users) > 0 {
			if id, ok := users[0]["id"].(string); ok {
				user.ID = id
			}
		}
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	fmt.Printf("👤 Created user %s via Supabase REST (provider: %s)\n", user.Email, user.Provider)
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *SupabaseDatabase) GetUserByEmail(email string) (*models.User, error) {
	endpoint := fmt.Sprintf("/users?email=eq.%s&select=*", url.QueryEscape(email))
	return db.getUser(endpoint)
}

// GetUserByID 根据ID获取用户
func (db *SupabaseDatabase) GetUserByID(id string) (*models.User, error) {
	endpoint := fmt.Sprintf("/users?id=eq.%s&select=*", url.QueryEscape(id))
	return db.getUser(endpoint)
}

func (db *SupabaseDatabase) getUser(endpoint string) (*models.User, error) {
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, mapRESTError(err)
	}

	var rawUsers []map[string]interface{}
	if err := json.Unmarshal(data, &rawUsers); err != nil {
		return nil, err
	}
	if len(rawUsers) == 0 {
		return nil, ErrNotFound
	}

	raw := rawUsers[0]
	user := &models.User{}
	if id, ok := raw["id"].(string); ok {
		user.ID = id
	}
	if email, ok := raw["email"].(string); ok {
		user.Email = email
	}
	if hash, ok := raw["password_hash"].(string); ok {
		user.Password = hash
	}
	if name, ok := raw["name"].(string); ok {
		user.Name = name
	}
	if avatar, ok := raw["avatar"].(string); ok {
		user.Avatar = avatar
	}
	if provider, ok := raw["provider"].(string); ok {
		user.Provider = provider
	}
	if createdAt, ok := raw["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			user.CreatedAt = t
		}
	}
	if updatedAt, ok := raw["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			user.UpdatedAt = t
		}
	}

	return user, nil
}

// UpdateUser 更新用户
func (db *SupabaseDatabase) UpdateUser(user *models.User) error {
	now := time.Now().UTC()
	userData := map[string]interface{}{
		"name":       user.Name,
		"avatar":     user.Avatar,
		"provider":   user.Provider,
		"updated_at": now.Format(time.RFC3339),
	}

	endpoint := fmt.Sprintf("/users?id=eq.%s", url.QueryEscape(user.ID))
	if _, err := db.makeRequest("PATCH", endpoint, userData); err != nil {
		return fmt.Errorf("failed to update user: %w", mapRESTError(err))
	}
	user.UpdatedAt = now
	return nil
}

// ================= Tabs =================

// supabaseTabRow PostgREST 行结构；data 列保持原始字符串
type supabaseTabRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
	Data        string `json:"data"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func (r *supabaseTabRow) toRecord() *models.TabRecord {
	rec := &models.TabRecord{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		UserID:      r.UserID,
		Data:        r.Data,
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec
}

// CreateTab 创建 tab
func (db *SupabaseDatabase) CreateTab(input *models.NewTabInput) (*models.TabRecord, error) {
	blob, err := models.EncodeTabData(models.TabData{
		Questions: input.Questions,
		TextInput: input.TextInput,
		URLInput:  input.URLInput,
		FileInput: input.FileInput,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payload := map[string]interface{}{
		"id":          models.SlugFromTitle(input.Title),
		"title":       input.Title,
		"description": input.Description,
		"user_id":     input.UserID,
		"data":        blob,
		"created_at":  now.Format(time.RFC3339),
		"updated_at":  now.Format(time.RFC3339),
	}

	data, err := db.makeRequest("POST", "/tabs", payload)
	if err != nil {
		return nil, mapRESTError(err)
	}

	var rows []supabaseTabRow
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("unexpected create tab response: %s", string(data))
	}

	fmt.Printf("💾 Created tab %s via Supabase REST (user: %s)\n", rows[0].ID, input.UserID)
	return rows[0].toRecord(), nil
}

// TabExistsWithTitle 按 (title, userID) 检查重名
func (db *SupabaseDatabase) TabExistsWithTitle(title, userID string) (bool, error) {
	endpoint := fmt.Sprintf("/tabs?title=eq.%s&user_id=eq.%s&select=id",
		url.QueryEscape(title), url.QueryEscape(userID))
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return false, mapRESTError(err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// GetTabByID 按主键取原始行
func (db *SupabaseDatabase) GetTabByID(id string) (*models.TabRecord, error) {
	endpoint := fmt.Sprintf("/tabs?id=eq.%s&select=*", url.QueryEscape(id))
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, mapRESTError(err)
	}

	var rows []supabaseTabRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].toRecord(), nil
}

// UpdateTab 部分更新：仅覆盖补丁中出现的字段
func (db *SupabaseDatabase) UpdateTab(patch *models.TabPatch) (*models.TabRecord, error) {
	if strings.TrimSpace(patch.ID) == "" {
		return nil, fmt.Errorf("tab id required")
	}

	payload := map[string]interface{}{
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if patch.Title != nil {
		payload["title"] = *patch.Title
	}
	if patch.Description != nil {
		payload["description"] = *patch.Description
	}
	if patch.HasBody() {
		blob, err := models.EncodeTabData(patch.BodyData())
		if err != nil {
			return nil, err
		}
		payload["data"] = blob
	}

	endpoint := fmt.Sprintf("/tabs?id=eq.%s", url.QueryEscape(patch.ID))
	data, err := db.makeRequest("PATCH", endpoint, payload)
	if err != nil {
		return nil, mapRESTError(err)
	}

	var rows []supabaseTabRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// PATCH 对不存在的行回空数组而不是404
		return nil, ErrNotFound
	}
	return rows[0].toRecord(), nil
}

// ListTabsByUser 返回 header-only 记录，按更新时间倒序
func (db *SupabaseDatabase) ListTabsByUser(userID string) ([]models.TabSummary, error) {
	endpoint := fmt.Sprintf("/tabs?user_id=eq.%s&select=id,title,user_id,description,updated_at&order=updated_at.desc",
		url.QueryEscape(userID))
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, mapRESTError(err)
	}

	var rows []supabaseTabRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}

	result := make([]models.TabSummary, 0, len(rows))
	for _, r := range rows {
		s := models.TabSummary{
			ID:          r.ID,
			Title:       r.Title,
			UserID:      r.UserID,
			Description: r.Description,
		}
		if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
			s.UpdatedAt = t
		}
		result = append(result, s)
	}
	return result, nil
}

// HealthCheck 健康检查
func (db *SupabaseDatabase) HealthCheck() error {
	_, err := db.makeRequest("GET", "/tabs?select=id&limit=1", nil)
	if err != nil {
		return fmt.Errorf("supabase health check failed: %w", err)
	}
	return nil
}

// Close 关闭连接（HTTP客户端无需关闭）
func (db *SupabaseDatabase) Close() error {
	return nil
}
