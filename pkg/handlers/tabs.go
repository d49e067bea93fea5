package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clearchoice-backend/pkg/config"
	"clearchoice-backend/pkg/database"
	"clearchoice-backend/pkg/models"
	"clearchoice-backend/pkg/utils"
)

// TabHandler tab处理器
type TabHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewTabHandler 创建tab处理器
func NewTabHandler(cfg *config.Config, db database.DatabaseInterface) *TabHandler {
	return &TabHandler{
		config: cfg,
		db:     db,
	}
}

// SaveTabRequest 保存tab请求（id为空表示新建）
type SaveTabRequest struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description *string            `json:"description,omitempty"`
	UserID      string             `json:"userId"`
	Questions   *[]models.Question `json:"questions,omitempty"`
	TextInput   *string            `json:"textInput,omitempty"`
	URLInput    *string            `json:"urlInput,omitempty"`
	FileInput   *string            `json:"fileInput,omitempty"`
}

// SaveTab 保存tab：id为空走新建（重名检查），否则走部分更新
func (h *TabHandler) SaveTab(w http.ResponseWriter, r *http.Request) {
	var req SaveTabRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.UserID == "" {
		utils.WriteValidationErrorResponse(w, "Title and userId are required", "")
		return
	}

	if req.Questions != nil {
		if err := models.ValidateQuestions(*req.Questions); err != nil {
			utils.WriteValidationErrorResponse(w, "Invalid questions", err.Error())
			return
		}
	}

	if req.ID == "" {
		h.createTab(w, &req)
		return
	}
	h.updateTab(w, &req)
}

// createTab 新建路径：先做重名预检查，再落库
func (h *TabHandler) createTab(w http.ResponseWriter, req *SaveTabRequest) {
	exists, err := h.db.TabExistsWithTitle(req.Title, req.UserID)
	if err != nil {
		utils.WriteStorageErrorResponse(w, "Failed to check tab title")
		return
	}
	if exists {
		utils.WriteConflictResponse(w, fmt.Sprintf("A tab named %q already exists", req.Title))
		return
	}

	input := &models.NewTabInput{
		Title:  req.Title,
		UserID: req.UserID,
	}
	if req.Description != nil {
		input.Description = *req.Description
	}
	if req.Questions != nil {
		input.Questions = *req.Questions
	}
	if req.TextInput != nil {
		input.TextInput = *req.TextInput
	}
	if req.URLInput != nil {
		input.URLInput = *req.URLInput
	}
	if req.FileInput != nil {
		input.FileInput = *req.FileInput
	}

	rec, err := h.db.CreateTab(input)
	if err != nil {
		// 并发创建时唯一约束兜底
		if database.IsConflict(err) {
			utils.WriteConflictResponse(w, fmt.Sprintf("A tab named %q already exists", req.Title))
			return
		}
		utils.WriteStorageErrorResponse(w, "Failed to create tab")
		return
	}

	fmt.Printf("💾 Created tab %s for user %s\n", rec.ID, rec.UserID)
	utils.WriteSuccessResponse(w, rec)
}

// updateTab 更新路径：仅覆盖请求中出现的字段
func (h *TabHandler) updateTab(w http.ResponseWriter, req *SaveTabRequest) {
	patch := &models.TabPatch{
		ID:          req.ID,
		Title:       &req.Title,
		Description: req.Description,
		TextInput:   req.TextInput,
		URLInput:    req.URLInput,
		FileInput:   req.FileInput,
	}
	if req.Questions != nil {
		patch.Questions = *req.Questions
	}

	rec, err := h.db.UpdateTab(patch)
	if err != nil {
		if database.IsNotFound(err) {
			utils.WriteNotFoundResponse(w, "Tab not found: "+req.ID)
			return
		}
		if database.IsConflict(err) {
			utils.WriteConflictResponse(w, fmt.Sprintf("A tab named %q already exists", req.Title))
			return
		}
		utils.WriteStorageErrorResponse(w, "Failed to update tab")
		return
	}

	fmt.Printf("💾 Updated tab %s for user %s\n", rec.ID, rec.UserID)
	utils.WriteSuccessResponse(w, rec)
}

// GetTab 按ID返回原始行，data保持存储形态的字符串
func (h *TabHandler) GetTab(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "tabId")
	if tabID == "" {
		utils.WriteBadRequestResponse(w, "Tab ID is required")
		return
	}

	rec, err := h.db.GetTabByID(tabID)
	if err != nil {
		if database.IsNotFound(err) {
			utils.WriteNotFoundResponse(w, "Tab not found: "+tabID)
			return
		}
		utils.WriteStorageErrorResponse(w, "Failed to get tab")
		return
	}

	utils.WriteSuccessResponse(w, rec)
}

// ListTabs 返回用户的全部tab头部信息
func (h *TabHandler) ListTabs(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		utils.WriteBadRequestResponse(w, "User ID is required")
		return
	}

	tabs, err := h.db.ListTabsByUser(userID)
	if err != nil {
		utils.WriteStorageErrorResponse(w, "Failed to list tabs")
		return
	}

	if tabs == nil {
		tabs = []models.TabSummary{}
	}
	utils.WriteSuccessResponse(w, tabs)
}

// History 按时间桶返回侧边栏分组
func (h *TabHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		utils.WriteBadRequestResponse(w, "User ID is required")
		return
	}

	tabs, err := h.db.ListTabsByUser(userID)
	if err != nil {
		utils.WriteStorageErrorResponse(w, "Failed to list tabs")
		return
	}

	utils.WriteSuccessResponse(w, models.BuildHistory(tabs, time.Now()))
}
