package handlers

import (
	"errors"
	"net/http"
	"strings"

	"form-builder-backend/pkg/config"
	"form-builder-backend/pkg/database"
	"form-builder-backend/pkg/middleware"
	"form-builder-backend/pkg/models"
	"form-builder-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// WorkspacesHandler 工作区处理器：列表、分享、分享链接
type WorkspacesHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	links  *utils.ShareLinkService
}

// NewWorkspacesHandler 创建工作区处理器
func NewWorkspacesHandler(cfg *config.Config, db database.DatabaseInterface) *WorkspacesHandler {
	return &WorkspacesHandler{
		config: cfg,
		db:     db,
		links:  utils.NewShareLinkService(cfg.ShareLinkSecret, cfg.BaseURL),
	}
}

// ==== helpers: access checks ====

// workspaceAccess 返回用户对工作区的访问级别
// owner拥有隐式的完整权限，不会出现在分享列表中
func (h *WorkspacesHandler) workspaceAccess(userID string, ws *models.Workspace) (models.AccessType, bool) {
	if ws.OwnerID == userID {
		return models.AccessEdit, true
	}
	for _, g := range ws.SharedWith {
		if g.UserID == userID {
			return g.AccessType, true
		}
	}
	return "", false
}

// requireOwner 校验调用者是工作区owner
func (h *WorkspacesHandler) requireOwner(w http.ResponseWriter, userID string, ws *models.Workspace) bool {
	if ws.OwnerID != userID {
		utils.WriteForbiddenResponse(w, "Only the workspace owner can share it")
		return false
	}
	return true
}

// GET /api/workspaces
func (h *WorkspacesHandler) ListMyWorkspaces(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	workspaces, err := h.db.ListAccessibleWorkspaces(user.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list workspaces: "+err.Error())
		return
	}

	// 空结果按约定返回404（区别于错误，表示"该用户没有任何工作区"）
	if len(workspaces) == 0 {
		utils.WriteNotFoundResponse(w, "No workspaces found for this user.")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message":    "Workspaces fetched successfully.",
		"workspaces": workspaces,
	})
}

// POST /api/workspaces
func (h *WorkspacesHandler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteBadRequestResponse(w, "Workspace name is required.")
		return
	}

	ws := &models.Workspace{OwnerID: user.ID, Name: strings.TrimSpace(req.Name)}
	if err := h.db.CreateWorkspace(ws); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create workspace: "+err.Error())
		return
	}

	utils.WriteCreatedResponse(w, map[string]interface{}{
		"message":   "Workspace created successfully.",
		"workspace": ws,
	})
}

// GET /api/workspaces/{workspaceID}
func (h *WorkspacesHandler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	workspaceID := chiRoute.URLParam(r, "workspaceID")
	if strings.TrimSpace(workspaceID) == "" {
		utils.WriteBadRequestResponse(w, "Workspace ID is required.")
		return
	}

	ws, err := h.db.GetWorkspace(workspaceID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Workspace not found.")
		return
	}

	if _, ok := h.workspaceAccess(user.ID, ws); !ok {
		utils.WriteForbiddenResponse(w, "You do not have access to this workspace")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message":   "Workspace fetched successfully.",
		"workspace": ws,
	})
}

// POST /api/workspaces/{workspaceID}/share
// 校验顺序：access_type → 目标用户 → 工作区 → owner → 重复分享
// 顺序决定了各类错误请求收到的错误码，保持稳定
func (h *WorkspacesHandler) ShareWorkspace(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	workspaceID := chiRoute.URLParam(r, "workspaceID")

	var req struct {
		Email      string `json:"email"`
		AccessType string `json:"access_type"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if workspaceID == "" || req.Email == "" || req.AccessType == "" {
		utils.WriteBadRequestResponse(w, "Workspace ID, email, and access type are required.")
		return
	}

	accessType := models.AccessType(req.AccessType)
	if !accessType.IsValid() {
		utils.WriteBadRequestResponse(w, "Invalid access type. Must be 'view' or 'edit'.")
		return
	}

	target, err := h.db.GetUserByEmail(strings.TrimSpace(req.Email))
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found.")
		return
	}

	ws, err := h.db.GetWorkspace(workspaceID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Workspace not found.")
		return
	}

	if !h.requireOwner(w, user.ID, ws) {
		return
	}

	// owner持有隐式权限，不允许给自己建立分享记录
	if target.ID == ws.OwnerID {
		utils.WriteBadRequestResponse(w, "The workspace owner already has full access.")
		return
	}

	grant := &models.AccessGrant{
		WorkspaceID: ws.ID,
		UserID:      target.ID,
		AccessType:  accessType,
	}
	inserted, err := h.db.InsertWorkspaceGrant(grant)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to share workspace: "+err.Error())
		return
	}
	if !inserted {
		utils.WriteConflictResponse(w, "User already has access to this workspace.")
		return
	}

	// 返回更新后的工作区
	updated, err := h.db.GetWorkspace(ws.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to reload workspace: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message":   "Workspace shared successfully.",
		"workspace": updated,
	})
}

// POST /api/workspaces/{workspaceID}/share-link
func (h *WorkspacesHandler) GenerateShareLink(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	workspaceID := chiRoute.URLParam(r, "workspaceID")

	var req struct {
		AccessType string `json:"access_type"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	accessType := models.AccessType(req.AccessType)
	if !accessType.IsValid() {
		utils.WriteBadRequestResponse(w, "Invalid access type. Must be 'view' or 'edit'.")
		return
	}

	ws, err := h.db.GetWorkspace(workspaceID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Workspace not found.")
		return
	}

	if !h.requireOwner(w, user.ID, ws) {
		return
	}

	link, token, err := h.links.GenerateLink(ws.ID, accessType, user.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate share link: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Share link generated successfully.",
		"link":    link,
		"token":   token,
	})
}

// POST /api/workspaces/join?token=...
// 链接在有效期内可多次兑换；重复兑换是幂等的成功而不是错误
func (h *WorkspacesHandler) JoinWorkspace(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		utils.WriteBadRequestResponse(w, "Share token is required.")
		return
	}

	claims, err := h.links.ValidateToken(tokenString)
	if err != nil {
		if errors.Is(err, utils.ErrLinkExpired) {
			utils.WriteUnauthorizedResponse(w, "Share link has expired.")
			return
		}
		utils.WriteUnauthorizedResponse(w, "Invalid share link.")
		return
	}

	// 工作区可能在链接签发后被删除
	ws, err := h.db.GetWorkspace(claims.WorkspaceID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Workspace not found.")
		return
	}

	// owner兑换自己的链接是no-op
	if ws.OwnerID != user.ID {
		grant := &models.AccessGrant{
			WorkspaceID: ws.ID,
			UserID:      user.ID,
			AccessType:  claims.AccessType,
		}
		if _, err := h.db.InsertWorkspaceGrant(grant); err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to join workspace: "+err.Error())
			return
		}
	}

	updated, err := h.db.GetWorkspace(ws.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to reload workspace: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message":   "Workspace joined successfully.",
		"workspace": updated,
	})
}

// DELETE /api/workspaces/{workspaceID}
func (h *WorkspacesHandler) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	workspaceID := chiRoute.URLParam(r, "workspaceID")
	ws, err := h.db.GetWorkspace(workspaceID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Workspace not found.")
		return
	}

	if ws.OwnerID != user.ID {
		utils.WriteForbiddenResponse(w, "Only the workspace owner can delete it")
		return
	}

	if err := h.db.DeleteWorkspace(ws.ID); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to delete workspace: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Workspace deleted successfully.",
		"id":      ws.ID,
	})
}
