package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"form-builder-backend/pkg/models"

	_ "github.com/lib/pq"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) DatabaseInterface {
	// 尝试多种连接策略来解决Vercel Lambda的IPv6问题
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "prefer_simple_protocol=true"),
		addConnectionParams(dsn, "prefer_simple_protocol=true&connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&prefer_simple_protocol=true"),
		dsn, // 最后尝试原始DSN
	}

	var db *sql.DB
	var err error

	for i, strategy := range strategies {
		fmt.Printf("🔄 Trying connection strategy %d...\n", i+1)

		db, err = sql.Open("postgres", strategy)
		if err != nil {
			fmt.Printf("❌ Strategy %d failed to open: %v\n", i+1, err)
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)                  // 限制最大连接数
		db.SetMaxIdleConns(2)                  // 限制空闲连接数
		db.SetConnMaxLifetime(5 * time.Minute) // 连接最大生命周期

		// 测试连接
		if err = db.Ping(); err != nil {
			fmt.Printf("❌ Strategy %d failed to ping: %v\n", i+1, err)
			db.Close()
			continue
		}

		fmt.Printf("✅ PostgreSQL connection established successfully with strategy %d\n", i+1)
		return &PostgresDatabase{db: db}
	}

	// 所有策略都失败了
	panic(fmt.Sprintf("Failed to connect to PostgreSQL with all strategies. Last error: %v", err))
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// ================= Users =================

// CreateUser 创建用户
func (db *PostgresDatabase) CreateUser(user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, name, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRow(query, user.Email, user.Password, user.Name).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *PostgresDatabase) GetUserByEmail(email string) (*models.User, error) {
	query := `
		SELECT id, email, COALESCE(name,''), COALESCE(password_hash,''), created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var u models.User
	err := db.db.QueryRow(query, email).Scan(
		&u.ID, &u.Email, &u.Name, &u.Password, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

// GetUserByID 根据ID获取用户
func (db *PostgresDatabase) GetUserByID(id string) (*models.User, error) {
	query := `
		SELECT id, email, COALESCE(name,''), created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var u models.User
	err := db.db.QueryRow(query, id).Scan(
		&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ================= Workspaces & Grants =================

// CreateWorkspace 创建工作区
func (db *PostgresDatabase) CreateWorkspace(ws *models.Workspace) error {
	query := `
		INSERT INTO workspaces (owner_id, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRow(query, ws.OwnerID, ws.Name).
		Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// GetWorkspace 获取工作区（含分享列表）
func (db *PostgresDatabase) GetWorkspace(workspaceID string) (*models.Workspace, error) {
	query := `SELECT id, owner_id, name, created_at, updated_at FROM workspaces WHERE id = $1`
	var ws models.Workspace
	err := db.db.QueryRow(query, workspaceID).
		Scan(&ws.ID, &ws.OwnerID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("workspace not found")
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	grants, err := db.ListWorkspaceGrants(ws.ID)
	if err != nil {
		return nil, err
	}
	ws.SharedWith = grants
	return &ws, nil
}

// ListAccessibleWorkspaces 列出用户拥有或被分享的工作区
func (db *PostgresDatabase) ListAccessibleWorkspaces(userID string) ([]models.Workspace, error) {
	query := `
		SELECT DISTINCT w.id, w.owner_id, w.name, w.created_at, w.updated_at
		FROM workspaces w
		LEFT JOIN workspace_grants g ON g.workspace_id = w.id
		WHERE w.owner_id = $1 OR g.user_id = $1
		ORDER BY w.created_at DESC
	`
	rows, err := db.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()
	var result []models.Workspace
	for rows.Next() {
		var ws models.Workspace
		if err := rows.Scan(&ws.ID, &ws.OwnerID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, ws)
	}
	return result, rows.Err()
}

// DeleteWorkspace 删除工作区（级联删除分享记录）
func (db *PostgresDatabase) DeleteWorkspace(workspaceID string) error {
	result, err := db.db.Exec(`DELETE FROM workspaces WHERE id = $1`, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("workspace not found")
	}
	return nil
}

// InsertWorkspaceGrant 原子追加分享记录
// 依赖 UNIQUE(workspace_id, user_id) + ON CONFLICT DO NOTHING，
// 并发分享同一工作区时不会丢失或重复
func (db *PostgresDatabase) InsertWorkspaceGrant(grant *models.AccessGrant) (bool, error) {
	query := `
		INSERT INTO workspace_grants (workspace_id, user_id, access_type, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (workspace_id, user_id) DO NOTHING
		RETURNING id, created_at
	`
	err := db.db.QueryRow(query, grant.WorkspaceID, grant.UserID, string(grant.AccessType)).
		Scan(&grant.ID, &grant.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			// 冲突：该用户已持有此工作区的分享
			return false, nil
		}
		return false, fmt.Errorf("failed to insert grant: %w", err)
	}
	return true, nil
}

// ListWorkspaceGrants 列出工作区的分享记录
func (db *PostgresDatabase) ListWorkspaceGrants(workspaceID string) ([]models.AccessGrant, error) {
	query := `
		SELECT id, workspace_id, user_id, access_type, created_at
		FROM workspace_grants
		WHERE workspace_id = $1
		ORDER BY created_at ASC
	`
	rows, err := db.db.Query(query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()
	var result []models.AccessGrant
	for rows.Next() {
		var g models.AccessGrant
		var accessType string
		if err := rows.Scan(&g.ID, &g.WorkspaceID, &g.UserID, &accessType, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.AccessType = models.AccessType(accessType)
		result = append(result, g)
	}
	return result, rows.Err()
}

// ================= Folders =================

// CreateFolder 创建文件夹
func (db *PostgresDatabase) CreateFolder(folder *models.Folder) error {
	query := `
		INSERT INTO folders (workspace_id, name, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`
	err := db.db.QueryRow(query, folder.WorkspaceID, folder.Name).
		Scan(&folder.ID, &folder.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

// GetFolder 获取文件夹
func (db *PostgresDatabase) GetFolder(folderID string) (*models.Folder, error) {
	var f models.Folder
	err := db.db.QueryRow(`SELECT id, workspace_id, name, created_at FROM folders WHERE id = $1`, folderID).
		Scan(&f.ID, &f.WorkspaceID, &f.Name, &f.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("folder not found")
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &f, nil
}

// GetFolderByName 按名称查找文件夹（用于重名检查）
func (db *PostgresDatabase) GetFolderByName(workspaceID, name string) (*models.Folder, error) {
	var f models.Folder
	err := db.db.QueryRow(`SELECT id, workspace_id, name, created_at FROM folders WHERE workspace_id = $1 AND name = $2`, workspaceID, name).
		Scan(&f.ID, &f.WorkspaceID, &f.Name, &f.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("folder not found")
		}
		return nil, fmt.Errorf("failed to get folder by name: %w", err)
	}
	return &f, nil
}

// ListFoldersByWorkspace 列出工作区下的文件夹
func (db *PostgresDatabase) ListFoldersByWorkspace(workspaceID string) ([]models.Folder, error) {
	rows, err := db.db.Query(`SELECT id, workspace_id, name, created_at FROM folders WHERE workspace_id = $1 ORDER BY created_at ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()
	var result []models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.WorkspaceID, &f.Name, &f.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// DeleteFolder 删除文件夹
func (db *PostgresDatabase) DeleteFolder(folderID string) error {
	result, err := db.db.Exec(`DELETE FROM folders WHERE id = $1`, folderID)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("folder not found")
	}
	return nil
}

// ================= Forms =================

const formColumns = `id, workspace_id, folder_id, name, COALESCE(form_data,'{}'), view_count, submit_count, created_by, created_at, updated_at`

func scanForm(row interface{ Scan(...interface{}) error }) (*models.Form, error) {
	var f models.Form
	var formData []byte
	err := row.Scan(&f.ID, &f.WorkspaceID, &f.FolderID, &f.Name, &formData,
		&f.ViewCount, &f.SubmitCount, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.FormData = formData
	return &f, nil
}

// CreateForm 创建表单
func (db *PostgresDatabase) CreateForm(form *models.Form) error {
	query := `
		INSERT INTO forms (workspace_id, folder_id, name, form_data, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE($4,'{}'::jsonb), $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	var formData interface{}
	if len(form.FormData) > 0 {
		formData = []byte(form.FormData)
	}
	err := db.db.QueryRow(query, form.WorkspaceID, form.FolderID, form.Name, formData, form.CreatedBy).
		Scan(&form.ID, &form.CreatedAt, &form.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create form: %w", err)
	}
	return nil
}

// GetForm 获取表单
func (db *PostgresDatabase) GetForm(formID string) (*models.Form, error) {
	row := db.db.QueryRow(`SELECT `+formColumns+` FROM forms WHERE id = $1`, formID)
	f, err := scanForm(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("form not found")
		}
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	return f, nil
}

// GetFormByName 按名称查找表单（用于重名检查）
func (db *PostgresDatabase) GetFormByName(workspaceID, name string) (*models.Form, error) {
	row := db.db.QueryRow(`SELECT `+formColumns+` FROM forms WHERE workspace_id = $1 AND name = $2`, workspaceID, name)
	f, err := scanForm(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("form not found")
		}
		return nil, fmt.Errorf("failed to get form by name: %w", err)
	}
	return f, nil
}

// ListForms 列出表单，folderID为空时返回不在任何文件夹中的表单
func (db *PostgresDatabase) ListForms(workspaceID, folderID string) ([]models.Form, error) {
	var rows *sql.Rows
	var err error
	if folderID == "" {
		rows, err = db.db.Query(`SELECT `+formColumns+` FROM forms WHERE workspace_id = $1 AND folder_id IS NULL ORDER BY created_at ASC`, workspaceID)
	} else {
		rows, err = db.db.Query(`SELECT `+formColumns+` FROM forms WHERE workspace_id = $1 AND folder_id = $2 ORDER BY created_at ASC`, workspaceID, folderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	defer rows.Close()
	var result []models.Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *f)
	}
	return result, rows.Err()
}

// UpdateForm 更新表单名称和数据
func (db *PostgresDatabase) UpdateForm(form *models.Form) error {
	result, err := db.db.Exec(`
		UPDATE forms
		SET name = COALESCE(NULLIF($1,''), name),
			form_data = COALESCE($2, form_data),
			updated_at = NOW()
		WHERE id = $3
	`, form.Name, nilIfEmptyJSON(form.FormData), form.ID)
	if err != nil {
		return fmt.Errorf("failed to update form: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("form not found")
	}
	return nil
}

func nilIfEmptyJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// DeleteForm 删除表单
func (db *PostgresDatabase) DeleteForm(formID string) error {
	result, err := db.db.Exec(`DELETE FROM forms WHERE id = $1`, formID)
	if err != nil {
		return fmt.Errorf("failed to delete form: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("form not found")
	}
	return nil
}

// IncrementFormViews 原子递增浏览数并返回表单
func (db *PostgresDatabase) IncrementFormViews(formID string) (*models.Form, error) {
	row := db.db.QueryRow(`
		UPDATE forms SET view_count = view_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+formColumns, formID)
	f, err := scanForm(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("form not found")
		}
		return nil, fmt.Errorf("failed to increment form views: %w", err)
	}
	return f, nil
}

// AddFormResponse 保存表单回复并递增提交数（单事务）
func (db *PostgresDatabase) AddFormResponse(resp *models.FormResponse) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}

	// id和submitted_at由调用方生成（见handlers）
	_, err = tx.Exec(`
		INSERT INTO form_responses (id, form_id, data, submitted_at)
		VALUES ($1, $2, $3, $4)
	`, resp.ID, resp.FormID, []byte(resp.Data), resp.SubmittedAt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert form response: %w", err)
	}

	result, err := tx.Exec(`UPDATE forms SET submit_count = submit_count + 1, updated_at = NOW() WHERE id = $1`, resp.FormID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to increment submit count: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("form not found")
	}

	return tx.Commit()
}

// ListFormResponses 列出表单的所有回复
func (db *PostgresDatabase) ListFormResponses(formID string) ([]models.FormResponse, error) {
	rows, err := db.db.Query(`SELECT id, form_id, data, submitted_at FROM form_responses WHERE form_id = $1 ORDER BY submitted_at ASC`, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to list form responses: %w", err)
	}
	defer rows.Close()
	var result []models.FormResponse
	for rows.Next() {
		var r models.FormResponse
		var data []byte
		if err := rows.Scan(&r.ID, &r.FormID, &data, &r.SubmittedAt); err != nil {
			return nil, err
		}
		r.Data = data
		result = append(result, r)
	}
	return result, rows.Err()
}

// ================= Misc =================

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
