package handlers

import (
	"net/http"
	"strings"

	"form-builder-backend/pkg/config"
	"form-builder-backend/pkg/database"
	"form-builder-backend/pkg/middleware"
	"form-builder-backend/pkg/models"
	"form-builder-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// FoldersHandler 文件夹处理器
type FoldersHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewFoldersHandler 创建文件夹处理器
func NewFoldersHandler(cfg *config.Config, db database.DatabaseInterface) *FoldersHandler {
	return &FoldersHandler{config: cfg, db: db}
}

// requireWorkspaceAccess 校验用户对工作区的访问级别
// needEdit为true时要求owner或edit分享；否则view分享即可
func requireWorkspaceAccess(w http.ResponseWriter, db database.DatabaseInterface, userID, workspaceID string, needEdit bool) (*models.Workspace, bool) {
	ws, err := db.GetWorkspace(workspaceID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Workspace not found.")
		return nil, false
	}

	if ws.OwnerID == userID {
		return ws, true
	}
	for _, g := range ws.SharedWith {
		if g.UserID == userID {
			if needEdit && g.AccessType != models.AccessEdit {
				utils.WriteForbiddenResponse(w, "Edit access required")
				return nil, false
			}
			return ws, true
		}
	}

	utils.WriteForbiddenResponse(w, "You do not have access to this workspace")
	return nil, false
}

// GET /api/folders?workspace_id=
func (h *FoldersHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		utils.WriteBadRequestResponse(w, "workspace_id required")
		return
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, workspaceID, false); !ok {
		return
	}

	folders, err := h.db.ListFoldersByWorkspace(workspaceID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list folders: "+err.Error())
		return
	}

	if len(folders) == 0 {
		utils.WriteNotFoundResponse(w, "No folders found for this workspace.")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Folders fetched successfully.",
		"folders": folders,
	})
}

// POST /api/folders
func (h *FoldersHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		WorkspaceID string `json:"workspace_id"`
		Name        string `json:"name"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.WorkspaceID == "" || req.Name == "" {
		utils.WriteBadRequestResponse(w, "Workspace ID and folder name are required.")
		return
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, req.WorkspaceID, true); !ok {
		return
	}

	// 同一工作区内文件夹不允许重名
	if _, err := h.db.GetFolderByName(req.WorkspaceID, req.Name); err == nil {
		utils.WriteBadRequestResponse(w, "Folder with the same name already exists.")
		return
	}

	folder := &models.Folder{WorkspaceID: req.WorkspaceID, Name: req.Name}
	if err := h.db.CreateFolder(folder); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create folder: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Folder created successfully.",
		"folder":  folder,
	})
}

// GET /api/folders/{folderID}
func (h *FoldersHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	folderID := chiRoute.URLParam(r, "folderID")
	folder, err := h.db.GetFolder(folderID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Folder not found.")
		return
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, folder.WorkspaceID, false); !ok {
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Folder fetched successfully.",
		"folder":  folder,
	})
}

// DELETE /api/folders/{folderID}
func (h *FoldersHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	folderID := chiRoute.URLParam(r, "folderID")
	folder, err := h.db.GetFolder(folderID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Folder not found.")
		return
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, folder.WorkspaceID, true); !ok {
		return
	}

	if err := h.db.DeleteFolder(folderID); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to delete folder: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Folder deleted successfully.",
	})
}
