package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"form-builder-backend/pkg/config"
	"form-builder-backend/pkg/middleware"
	"form-builder-backend/pkg/models"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// fakeDB 内存数据库实现，行为与Postgres实现保持一致：
// 找不到记录返回sql.ErrNoRows，重复grant插入返回inserted=false
type fakeDB struct {
	mu         sync.Mutex
	seq        int
	users      map[string]*models.User
	workspaces map[string]*models.Workspace
	grants     map[string][]models.AccessGrant
	folders    map[string]*models.Folder
	forms      map[string]*models.Form
	responses  map[string][]models.FormResponse
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:      make(map[string]*models.User),
		workspaces: make(map[string]*models.Workspace),
		grants:     make(map[string][]models.AccessGrant),
		folders:    make(map[string]*models.Folder),
		forms:      make(map[string]*models.Form),
		responses:  make(map[string][]models.FormResponse),
	}
}

func (f *fakeDB) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeDB) CreateUser(user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = f.nextID("user")
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return nil
}

func (f *fakeDB) GetUserByEmail(email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDB) GetUserByID(id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDB) CreateWorkspace(ws *models.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws.ID = f.nextID("ws")
	ws.CreatedAt = time.Now()
	ws.UpdatedAt = ws.CreatedAt
	f.workspaces[ws.ID] = ws
	return nil
}

func (f *fakeDB) GetWorkspace(workspaceID string) (*models.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[workspaceID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *ws
	copied.SharedWith = append([]models.AccessGrant(nil), f.grants[workspaceID]...)
	return &copied, nil
}

func (f *fakeDB) ListAccessibleWorkspaces(userID string) ([]models.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Workspace
	for id, ws := range f.workspaces {
		if ws.OwnerID == userID {
			out = append(out, *ws)
			continue
		}
		for _, g := range f.grants[id] {
			if g.UserID == userID {
				out = append(out, *ws)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeDB) DeleteWorkspace(workspaceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.workspaces, workspaceID)
	delete(f.grants, workspaceID)
	return nil
}

func (f *fakeDB) InsertWorkspaceGrant(grant *models.AccessGrant) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants[grant.WorkspaceID] {
		if g.UserID == grant.UserID {
			return false, nil
		}
	}
	grant.ID = f.nextID("grant")
	grant.CreatedAt = time.Now()
	f.grants[grant.WorkspaceID] = append(f.grants[grant.WorkspaceID], *grant)
	return true, nil
}

func (f *fakeDB) ListWorkspaceGrants(workspaceID string) ([]models.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AccessGrant(nil), f.grants[workspaceID]...), nil
}

func (f *fakeDB) CreateFolder(folder *models.Folder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder.ID = f.nextID("folder")
	folder.CreatedAt = time.Now()
	f.folders[folder.ID] = folder
	return nil
}

func (f *fakeDB) GetFolder(folderID string) (*models.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if folder, ok := f.folders[folderID]; ok {
		return folder, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDB) GetFolderByName(workspaceID, name string) (*models.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, folder := range f.folders {
		if folder.WorkspaceID == workspaceID && folder.Name == name {
			return folder, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDB) ListFoldersByWorkspace(workspaceID string) ([]models.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Folder
	for _, folder := range f.folders {
		if folder.WorkspaceID == workspaceID {
			out = append(out, *folder)
		}
	}
	return out, nil
}

func (f *fakeDB) DeleteFolder(folderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.folders, folderID)
	return nil
}

func (f *fakeDB) CreateForm(form *models.Form) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	form.ID = f.nextID("form")
	form.CreatedAt = time.Now()
	form.UpdatedAt = form.CreatedAt
	f.forms[form.ID] = form
	return nil
}

func (f *fakeDB) GetForm(formID string) (*models.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if form, ok := f.forms[formID]; ok {
		copied := *form
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDB) GetFormByName(workspaceID, name string) (*models.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, form := range f.forms {
		if form.WorkspaceID == workspaceID && form.Name == name {
			copied := *form
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDB) ListForms(workspaceID, folderID string) ([]models.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Form
	for _, form := range f.forms {
		if form.WorkspaceID != workspaceID {
			continue
		}
		if folderID == "" {
			if form.FolderID == nil {
				out = append(out, *form)
			}
		} else if form.FolderID != nil && *form.FolderID == folderID {
			out = append(out, *form)
		}
	}
	return out, nil
}

func (f *fakeDB) UpdateForm(form *models.Form) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.forms[form.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if form.Name != "" {
		existing.Name = form.Name
	}
	if form.FormData != nil {
		existing.FormData = form.FormData
	}
	existing.UpdatedAt = time.Now()
	return nil
}

func (f *fakeDB) DeleteForm(formID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.forms, formID)
	return nil
}

func (f *fakeDB) IncrementFormViews(formID string) (*models.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	form, ok := f.forms[formID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	form.ViewCount++
	copied := *form
	return &copied, nil
}

func (f *fakeDB) AddFormResponse(resp *models.FormResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	form, ok := f.forms[resp.FormID]
	if !ok {
		return sql.ErrNoRows
	}
	f.responses[resp.FormID] = append(f.responses[resp.FormID], *resp)
	form.SubmitCount++
	return nil
}

func (f *fakeDB) ListFormResponses(formID string) ([]models.FormResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.FormResponse(nil), f.responses[formID]...), nil
}

func (f *fakeDB) HealthCheck() error { return nil }
func (f *fakeDB) Close() error       { return nil }

// ==== test env ====

type testEnv struct {
	cfg        *config.Config
	db         *fakeDB
	router     *chiRoute.Mux
	auth       *AuthHandler
	workspaces *WorkspacesHandler
	folders    *FoldersHandler
	forms      *FormsHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Environment:     "test",
		JWTSecret:       "test-secret",
		ShareLinkSecret: "test-secret",
		BaseURL:         "http://localhost:3000",
	}
	db := newFakeDB()

	env := &testEnv{
		cfg:        cfg,
		db:         db,
		auth:       NewAuthHandler(cfg, db),
		workspaces: NewWorkspacesHandler(cfg, db),
		folders:    NewFoldersHandler(cfg, db),
		forms:      NewFormsHandler(cfg, db),
	}

	r := chiRoute.NewRouter()
	r.Route("/api", func(r chiRoute.Router) {
		r.Post("/auth/register", env.auth.Register)
		r.Post("/auth/login", env.auth.Login)

		r.Route("/workspaces", func(r chiRoute.Router) {
			r.Get("/", env.workspaces.ListMyWorkspaces)
			r.Post("/", env.workspaces.CreateWorkspace)
			r.Post("/join", env.workspaces.JoinWorkspace)
			r.Get("/{workspaceID}", env.workspaces.GetWorkspace)
			r.Delete("/{workspaceID}", env.workspaces.DeleteWorkspace)
			r.Post("/{workspaceID}/share", env.workspaces.ShareWorkspace)
			r.Post("/{workspaceID}/share-link", env.workspaces.GenerateShareLink)
		})

		r.Route("/folders", func(r chiRoute.Router) {
			r.Get("/", env.folders.ListFolders)
			r.Post("/", env.folders.CreateFolder)
			r.Get("/{folderID}", env.folders.GetFolder)
			r.Delete("/{folderID}", env.folders.DeleteFolder)
		})

		r.Route("/forms", func(r chiRoute.Router) {
			r.Get("/public/{formID}", env.forms.PublicForm)
			r.Post("/{formID}/responses", env.forms.CollectResponse)
			r.Get("/", env.forms.ListForms)
			r.Post("/", env.forms.CreateForm)
			r.Get("/{formID}", env.forms.GetForm)
			r.Put("/{formID}", env.forms.UpdateForm)
			r.Delete("/{formID}", env.forms.DeleteForm)
			r.Get("/{formID}/responses", env.forms.ListResponses)
		})
	})
	env.router = r

	return env
}

// addUser 直接在fakeDB中创建用户
func (env *testEnv) addUser(t *testing.T, name, email string) *models.User {
	t.Helper()
	user := &models.User{Name: name, Email: email, Password: "hash"}
	require.NoError(t, env.db.CreateUser(user))
	return user
}

// addWorkspace 直接在fakeDB中创建工作区
func (env *testEnv) addWorkspace(t *testing.T, ownerID, name string) *models.Workspace {
	t.Helper()
	ws := &models.Workspace{OwnerID: ownerID, Name: name}
	require.NoError(t, env.db.CreateWorkspace(ws))
	return ws
}

// do 发起一个请求；user非nil时注入认证context
func (env *testEnv) do(t *testing.T, method, target string, body interface{}, user *models.User) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		ctx := context.WithValue(req.Context(), middleware.UserContextKey, user)
		req = req.WithContext(ctx)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

// decodeData 解析响应envelope中的data字段
func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var envelope struct {
		Success bool                       `json:"success"`
		Data    map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}
