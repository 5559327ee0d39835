package database

import (
	"form-builder-backend/pkg/models"
)

// DatabaseInterface 定义数据库访问接口
type DatabaseInterface interface {
	// 用户管理
	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)

	// Workspaces & Grants
	CreateWorkspace(ws *models.Workspace) error
	GetWorkspace(workspaceID string) (*models.Workspace, error)
	// ListAccessibleWorkspaces returns workspaces owned by or shared with the user.
	ListAccessibleWorkspaces(userID string) ([]models.Workspace, error)
	DeleteWorkspace(workspaceID string) error
	// InsertWorkspaceGrant performs an atomic insert-if-absent on the grant set.
	// Returns inserted=false without error when a grant for (workspace, user)
	// already exists. 并发下的唯一性由数据库的唯一约束保证，而不是读-改-写。
	InsertWorkspaceGrant(grant *models.AccessGrant) (inserted bool, err error)
	ListWorkspaceGrants(workspaceID string) ([]models.AccessGrant, error)

	// Folders
	CreateFolder(folder *models.Folder) error
	GetFolder(folderID string) (*models.Folder, error)
	GetFolderByName(workspaceID, name string) (*models.Folder, error)
	ListFoldersByWorkspace(workspaceID string) ([]models.Folder, error)
	DeleteFolder(folderID string) error

	// Forms
	CreateForm(form *models.Form) error
	GetForm(formID string) (*models.Form, error)
	GetFormByName(workspaceID, name string) (*models.Form, error)
	// ListForms filters by folder; folderID "" selects forms without a folder.
	ListForms(workspaceID, folderID string) ([]models.Form, error)
	UpdateForm(form *models.Form) error
	DeleteForm(formID string) error
	// IncrementFormViews bumps view_count atomically and returns the form.
	IncrementFormViews(formID string) (*models.Form, error)
	// AddFormResponse stores the response and bumps submit_count in one transaction.
	AddFormResponse(resp *models.FormResponse) error
	ListFormResponses(formID string) ([]models.FormResponse, error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	PostgresDSN string
	Debug       bool
}

// NewDatabase 根据配置创建数据库实现
func NewDatabase(config DatabaseConfig) DatabaseInterface {
	if config.PostgresDSN != "" {
		return NewPostgresDatabase(config.PostgresDSN)
	}

	panic("No valid database configuration found. Please configure POSTGRES_DSN")
}
