package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clearchoice-backend/pkg/config"
	"clearchoice-backend/pkg/database"
	"clearchoice-backend/pkg/middleware"
	"clearchoice-backend/pkg/models"
	"clearchoice-backend/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, db database.DatabaseInterface) *AuthHandler {
	return &AuthHandler{
		config: cfg,
		db:     db,
	}
}

// GoogleUser Google用户信息
type GoogleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleTokenResponse Google令牌响应
type GoogleTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// GitHubUser GitHub用户信息
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// OAuthRequest OAuth授权码请求
type OAuthRequest struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// Signup 邮箱注册
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		utils.WriteValidationErrorResponse(w, "Email and password are required", "")
		return
	}

	// 邮箱唯一性预检查
	if _, err := h.db.GetUserByEmail(req.Email); err == nil {
		utils.WriteConflictResponse(w, "User with this email already exists")
		return
	} else if !database.IsNotFound(err) {
		utils.WriteStorageErrorResponse(w, "Failed to check existing user")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to process password")
		return
	}

	user := &models.User{
		Email:     req.Email,
		Password:  hash,
		Name:      req.Name,
		Provider:  "credentials",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := h.db.CreateUser(user); err != nil {
		// 并发注册时唯一约束兜底
		if database.IsConflict(err) {
			utils.WriteConflictResponse(w, "User with this email already exists")
			return
		}
		utils.WriteStorageErrorResponse(w, "Failed to create user")
		return
	}

	fmt.Printf("👤 Created new user %s (provider: credentials)\n", user.Email)
	utils.WriteCreatedResponse(w, user)
}

// Login 邮箱登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		utils.WriteValidationErrorResponse(w, "Email and password are required", "")
		return
	}

	user, err := h.db.GetUserByEmail(strings.TrimSpace(req.Email))
	if err != nil {
		// 不区分用户不存在和密码错误
		utils.WriteUnauthorizedResponse(w, "Invalid email or password")
		return
	}

	if !utils.CheckPassword(user.Password, req.Password) {
		utils.WriteUnauthorizedResponse(w, "Invalid email or password")
		return
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessToken, refreshToken, expiresIn, err := jwtService.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens")
		return
	}

	utils.WriteSuccessResponse(w, models.LoginResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}

// RefreshToken 刷新访问令牌
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if req.RefreshToken == "" {
		utils.WriteValidationErrorResponse(w, "Refresh token is required", "")
		return
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessToken, expiresIn, err := jwtService.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid refresh token")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresIn,
	})
}

// Logout 登出（无状态JWT，客户端丢弃令牌即可）
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Logged out successfully",
	})
}

// GoogleOAuth Google OAuth登录（前端提交授权码）
func (h *AuthHandler) GoogleOAuth(w http.ResponseWriter, r *http.Request) {
	var req OAuthRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if req.Code == "" {
		utils.WriteBadRequestResponse(w, "Authorization code is required")
		return
	}

	fmt.Printf("🔄 Google OAuth token exchange request received (code length: %d)\n", len(req.Code))
	h.handleGoogleOAuthFlow(w, r, req.Code, false)
}

// GitHubOAuth GitHub OAuth登录（前端提交授权码）
func (h *AuthHandler) GitHubOAuth(w http.ResponseWriter, r *http.Request) {
	var req OAuthRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if req.Code == "" {
		utils.WriteBadRequestResponse(w, "Authorization code is required")
		return
	}

	fmt.Printf("🔄 GitHub OAuth token exchange request received (code length: %d)\n", len(req.Code))
	h.handleGitHubOAuthFlow(w, r, req.Code, false)
}

// GoogleOAuthCallback Google OAuth回调（浏览器重定向进入）
func (h *AuthHandler) GoogleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	errorParam := r.URL.Query().Get("error")

	if errorParam != "" {
		h.redirectOAuthError(w, r, "oauth_denied", "Google OAuth error: "+errorParam)
		return
	}
	if code == "" {
		utils.WriteBadRequestResponse(w, "Missing Google authorization code")
		return
	}

	h.handleGoogleOAuthFlow(w, r, code, true)
}

// GitHubOAuthCallback GitHub OAuth回调（浏览器重定向进入）
func (h *AuthHandler) GitHubOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	errorParam := r.URL.Query().Get("error")

	if errorParam != "" {
		h.redirectOAuthError(w, r, "oauth_denied", "GitHub OAuth error: "+errorParam)
		return
	}
	if code == "" {
		utils.WriteBadRequestResponse(w, "Missing GitHub authorization code")
		return
	}

	h.handleGitHubOAuthFlow(w, r, code, true)
}

// handleGoogleOAuthFlow 处理Google OAuth流程
func (h *AuthHandler) handleGoogleOAuthFlow(w http.ResponseWriter, r *http.Request, code string, redirect bool) {
	// 1. 使用授权码换取访问令牌
	accessToken, err := h.exchangeGoogleCode(code)
	if err != nil {
		fmt.Printf("❌ Failed to exchange Google code: %v\n", err)
		h.oauthError(w, r, redirect, "token_exchange_failed", "Failed to exchange code for token: "+err.Error())
		return
	}

	// 2. 使用访问令牌获取用户信息
	googleUser, err := h.getGoogleUserInfo(accessToken)
	if err != nil {
		h.oauthError(w, r, redirect, "user_info_failed", "Failed to get user info: "+err.Error())
		return
	}

	// 3. 在数据库中查找或创建用户
	user, err := h.findOrCreateUser(googleUser.Email, googleUser.Name, googleUser.Picture, "google")
	if err != nil {
		h.oauthError(w, r, redirect, "user_creation_failed", "Failed to create user: "+err.Error())
		return
	}

	// 4. 生成JWT令牌
	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessTokenJWT, refreshToken, expiresIn, err := jwtService.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		h.oauthError(w, r, redirect, "token_generation_failed", "Failed to generate tokens: "+err.Error())
		return
	}

	h.oauthSuccess(w, r, redirect, user, accessTokenJWT, refreshToken, expiresIn)
}

// handleGitHubOAuthFlow 处理GitHub OAuth流程
func (h *AuthHandler) handleGitHubOAuthFlow(w http.ResponseWriter, r *http.Request, code string, redirect bool) {
	accessToken, err := h.exchangeGitHubCodeForToken(code)
	if err != nil {
		h.oauthError(w, r, redirect, "token_exchange_failed", "Failed to exchange code for token: "+err.Error())
		return
	}

	githubUser, err := h.getGitHubUserInfo(accessToken)
	if err != nil {
		h.oauthError(w, r, redirect, "user_info_failed", "Failed to get user info: "+err.Error())
		return
	}

	user, err := h.findOrCreateUser(githubUser.Email, githubUser.Name, githubUser.AvatarURL, "github")
	if err != nil {
		h.oauthError(w, r, redirect, "user_creation_failed", "Failed to create user: "+err.Error())
		return
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessTokenJWT, refreshToken, expiresIn, err := jwtService.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		h.oauthError(w, r, redirect, "token_generation_failed", "Failed to generate tokens: "+err.Error())
		return
	}

	h.oauthSuccess(w, r, redirect, user, accessTokenJWT, refreshToken, expiresIn)
}

// oauthSuccess 按调用方式返回JSON或重定向到前端
func (h *AuthHandler) oauthSuccess(w http.ResponseWriter, r *http.Request, redirect bool, user *models.User, accessToken, refreshToken string, expiresIn int64) {
	if !redirect {
		utils.WriteSuccessResponse(w, models.LoginResponse{
			User:         user,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    expiresIn,
		})
		return
	}

	frontendURL := h.getFrontendCallbackURL()
	redirectURL := fmt.Sprintf("%s?success=true&access_token=%s&refresh_token=%s&expires_in=%d&user_id=%s&email=%s",
		frontendURL,
		url.QueryEscape(accessToken),
		url.QueryEscape(refreshToken),
		expiresIn,
		url.QueryEscape(user.ID),
		url.QueryEscape(user.Email),
	)

	http.Redirect(w, r, redirectURL, http.StatusFound)
	fmt.Printf("🔄 Redirected OAuth client to frontend: %s\n", frontendURL)
}

func (h *AuthHandler) oauthError(w http.ResponseWriter, r *http.Request, redirect bool, errorCode, errorMessage string) {
	if !redirect {
		utils.WriteErrorResponseWithCode(w, http.StatusUnauthorized, "AUTH_ERROR", errorMessage, errorCode)
		return
	}
	h.redirectOAuthError(w, r, errorCode, errorMessage)
}

func (h *AuthHandler) redirectOAuthError(w http.ResponseWriter, r *http.Request, errorCode, errorMessage string) {
	redirectURL := fmt.Sprintf("%s?error=%s&error_description=%s",
		h.getFrontendCallbackURL(),
		url.QueryEscape(errorCode),
		url.QueryEscape(errorMessage),
	)
	http.Redirect(w, r, redirectURL, http.StatusFound)
	fmt.Printf("🔄 Redirected OAuth client to frontend error page: %s\n", errorCode)
}

// getFrontendCallbackURL 获取前端回调URL
func (h *AuthHandler) getFrontendCallbackURL() string {
	if h.config.BaseURL != "" {
		return strings.TrimRight(h.config.BaseURL, "/") + "/auth/callback"
	}
	return "http://localhost:3000/auth/callback"
}

// exchangeGoogleCode 使用授权码换取Google访问令牌
func (h *AuthHandler) exchangeGoogleCode(code string) (string, error) {
	data := url.Values{}
	data.Set("client_id", h.config.GoogleClientID)
	data.Set("client_secret", h.config.GoogleClientSecret)
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", h.config.OAuthRedirectURI)

	resp, err := http.PostForm("https://oauth2.googleapis.com/token", data)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Printf("❌ Google OAuth error response: %s\n", string(body))
		return "", fmt.Errorf("Google token exchange failed: %s", string(body))
	}

	var tokenResp GoogleTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	return tokenResp.AccessToken, nil
}

// getGoogleUserInfo 使用访问令牌获取用户信息
func (h *AuthHandler) getGoogleUserInfo(accessToken string) (*GoogleUser, error) {
	req, err := http.NewRequest("GET", "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Google user info request failed: %s", string(body))
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &user, nil
}

// exchangeGitHubCodeForToken 交换GitHub授权码为访问令牌
func (h *AuthHandler) exchangeGitHubCodeForToken(code string) (string, error) {
	data := url.Values{}
	data.Set("client_id", h.config.GitHubClientID)
	data.Set("client_secret", h.config.GitHubClientSecret)
	data.Set("code", code)

	resp, err := http.PostForm("https://github.com/login/oauth/access_token", data)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("GitHub OAuth failed with status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	// GitHub返回的是URL编码格式，需要解析
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	accessToken := values.Get("access_token")
	if accessToken == "" {
		return "", fmt.Errorf("no access token in response: %s", string(body))
	}

	return accessToken, nil
}

// getGitHubUserInfo 获取GitHub用户信息
func (h *AuthHandler) getGitHubUserInfo(accessToken string) (*GitHubUser, error) {
	req, err := http.NewRequest("GET", "https://api.github.com/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API failed with status %d: %s", resp.StatusCode, string(body))
	}

	var githubUser GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&githubUser); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	// 如果用户没有公开邮箱，需要单独获取
	if githubUser.Email == "" {
		email, err := h.getGitHubUserEmail(accessToken)
		if err != nil {
			fmt.Printf("⚠️ Failed to get GitHub user email: %v\n", err)
		} else {
			githubUser.Email = email
		}
	}

	return &githubUser, nil
}

// getGitHubUserEmail 获取GitHub用户的主邮箱
func (h *AuthHandler) getGitHubUserEmail(accessToken string) (string, error) {
	req, err := http.NewRequest("GET", "https://api.github.com/user/emails", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get user emails: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub emails API failed with status %d", resp.StatusCode)
	}

	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", fmt.Errorf("failed to decode emails: %w", err)
	}

	for _, email := range emails {
		if email.Primary {
			return email.Email, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, nil
	}

	return "", fmt.Errorf("no email found")
}

// findOrCreateUser 查找或创建OAuth用户
func (h *AuthHandler) findOrCreateUser(email, name, avatar, provider string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("OAuth provider did not return an email")
	}

	user, err := h.db.GetUserByEmail(email)
	if err == nil {
		// 用户已存在，更新OAuth信息
		user.Name = name
		user.Avatar = avatar
		user.Provider = provider
		user.UpdatedAt = time.Now()

		if err := h.db.UpdateUser(user); err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}

		fmt.Printf("👤 Found existing user %s, updated OAuth info (provider: %s)\n", user.Email, provider)
		return user, nil
	}
	if !database.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	newUser := &models.User{
		Email:     email,
		Name:      name,
		Avatar:    avatar,
		Provider:  provider,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := h.db.CreateUser(newUser); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("👤 Created new OAuth user %s (provider: %s)\n", newUser.Email, provider)
	return newUser, nil
}

// Profile 返回当前登录用户的资料
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	user, err := h.db.GetUserByID(claims.ID)
	if err != nil {
		if database.IsNotFound(err) {
			utils.WriteNotFoundResponse(w, "User not found")
			return
		}
		utils.WriteStorageErrorResponse(w, "Failed to load user")
		return
	}

	utils.WriteSuccessResponse(w, user)
}

// HealthCheck 健康检查
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "healthy"
	if err := h.db.HealthCheck(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     "clearchoice-backend",
		"version":     "1.0.0",
		"environment": h.config.Environment,
		"database":    h.getDatabaseType(),
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
		"status":      "healthy",
	})
}

// getDatabaseType 获取数据库类型
func (h *AuthHandler) getDatabaseType() string {
	if h.config.UseLocalDB {
		return "sqlite"
	}
	if h.config.PostgresDSN != "" {
		return "postgresql"
	}
	if h.config.SupabaseURL != "" && h.config.SupabaseKey != "" {
		return "supabase"
	}
	return "unknown"
}
