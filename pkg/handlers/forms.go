package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"form-builder-backend/pkg/config"
	"form-builder-backend/pkg/database"
	"form-builder-backend/pkg/middleware"
	"form-builder-backend/pkg/models"
	"form-builder-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// FormsHandler 表单处理器：表单CRUD、公开访问和回复收集
type FormsHandler struct {
	config *config.Config
	db     database.DatabaseInterface
}

// NewFormsHandler 创建表单处理器
func NewFormsHandler(cfg *config.Config, db database.DatabaseInterface) *FormsHandler {
	return &FormsHandler{config: cfg, db: db}
}

// POST /api/forms
func (h *FormsHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		Name        string          `json:"name"`
		WorkspaceID string          `json:"workspace_id"`
		FolderID    string          `json:"folder_id"`
		Data        json.RawMessage `json:"data"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.WorkspaceID == "" {
		utils.WriteBadRequestResponse(w, "All fields are required.")
		return
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, req.WorkspaceID, true); !ok {
		return
	}

	// 同一工作区内表单不允许重名
	if _, err := h.db.GetFormByName(req.WorkspaceID, req.Name); err == nil {
		utils.WriteBadRequestResponse(w, "Form with the same name already exists.")
		return
	}

	form := &models.Form{
		Name:        req.Name,
		WorkspaceID: req.WorkspaceID,
		FormData:    req.Data,
		CreatedBy:   user.ID,
	}
	if req.FolderID != "" {
		// 文件夹必须存在且属于同一工作区
		folder, err := h.db.GetFolder(req.FolderID)
		if err != nil || folder.WorkspaceID != req.WorkspaceID {
			utils.WriteNotFoundResponse(w, "Folder not found.")
			return
		}
		form.FolderID = &req.FolderID
	}

	if err := h.db.CreateForm(form); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Error creating form: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Form created successfully.",
		"form":    form,
	})
}

// GET /api/forms?workspace_id=&folder_id=
// folder_id为"root"或缺省时返回不在任何文件夹中的表单
func (h *FormsHandler) ListForms(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		utils.WriteBadRequestResponse(w, "Workspace ID is required.")
		return
	}
	folderID := utils.GetQueryParam(r, "folder_id", "root")
	if folderID == "root" {
		folderID = ""
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, workspaceID, false); !ok {
		return
	}

	forms, err := h.db.ListForms(workspaceID, folderID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Error fetching forms: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Forms fetched successfully.",
		"forms":   forms,
	})
}

// GET /api/forms/{formID}
func (h *FormsHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	formID := chiRoute.URLParam(r, "formID")
	form, err := h.db.GetForm(formID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Form not found.")
		return
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, form.WorkspaceID, false); !ok {
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Form fetched successfully.",
		"form":    form,
	})
}

// PUT /api/forms/{formID}
func (h *FormsHandler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	formID := chiRoute.URLParam(r, "formID")
	form, err := h.db.GetForm(formID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Form not found.")
		return
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, form.WorkspaceID, true); !ok {
		return
	}

	var req struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	form.Name = strings.TrimSpace(req.Name)
	form.FormData = req.Data
	if err := h.db.UpdateForm(form); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Error updating form: "+err.Error())
		return
	}

	updated, err := h.db.GetForm(formID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Error fetching form: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Form updated successfully.",
		"form":    updated,
	})
}

// DELETE /api/forms/{formID}
func (h *FormsHandler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	formID := chiRoute.URLParam(r, "formID")
	form, err := h.db.GetForm(formID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Form not found.")
		return
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, form.WorkspaceID, true); !ok {
		return
	}

	if err := h.db.DeleteForm(formID); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Error deleting form: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Form deleted successfully.",
	})
}

// GET /api/forms/public/{formID}
// 公开访问，不需要认证；每次访问递增浏览数
func (h *FormsHandler) PublicForm(w http.ResponseWriter, r *http.Request) {
	formID := chiRoute.URLParam(r, "formID")
	form, err := h.db.IncrementFormViews(formID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Form not found.")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Form fetched successfully.",
		"form":    form,
	})
}

// POST /api/forms/{formID}/responses
// 公开提交，不需要认证
func (h *FormsHandler) CollectResponse(w http.ResponseWriter, r *http.Request) {
	formID := chiRoute.URLParam(r, "formID")

	var req struct {
		Data json.RawMessage `json:"data"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if len(req.Data) == 0 {
		utils.WriteBadRequestResponse(w, "Response data is required.")
		return
	}

	if _, err := h.db.GetForm(formID); err != nil {
		utils.WriteNotFoundResponse(w, "Form not found.")
		return
	}

	resp := &models.FormResponse{
		ID:          uuid.New().String(),
		FormID:      formID,
		Data:        req.Data,
		SubmittedAt: time.Now(),
	}
	if err := h.db.AddFormResponse(resp); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Error collecting response: "+err.Error())
		return
	}

	form, err := h.db.GetForm(formID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Error fetching form: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message":  "Response collected successfully.",
		"form":     form,
		"response": resp,
	})
}

// GET /api/forms/{formID}/responses
// 查看回复需要工作区访问权限
func (h *FormsHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	formID := chiRoute.URLParam(r, "formID")
	form, err := h.db.GetForm(formID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Form not found.")
		return
	}

	if _, ok := requireWorkspaceAccess(w, h.db, user.ID, form.WorkspaceID, false); !ok {
		return
	}

	responses, err := h.db.ListFormResponses(formID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Error fetching responses: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message":   "Responses fetched successfully.",
		"responses": responses,
		"count":     len(responses),
	})
}
