package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"form-builder-backend/pkg/models"
	"form-builder-backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMyWorkspacesEmpty(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "Alice", "alice@example.com")

	rec := env.do(t, http.MethodGet, "/api/workspaces", nil, user)
	// 空列表按约定返回404而不是空数组
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMyWorkspacesIncludesShared(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	member := env.addUser(t, "Bob", "bob@example.com")

	env.addWorkspace(t, owner.ID, "Alice workspace")
	shared := env.addWorkspace(t, owner.ID, "Shared workspace")
	_, err := env.db.InsertWorkspaceGrant(&models.AccessGrant{
		WorkspaceID: shared.ID,
		UserID:      member.ID,
		AccessType:  models.AccessView,
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/workspaces", nil, member)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, rec)
	var workspaces []models.Workspace
	require.NoError(t, json.Unmarshal(data["workspaces"], &workspaces))
	require.Len(t, workspaces, 1)
	assert.Equal(t, shared.ID, workspaces[0].ID)
}

func TestCreateWorkspace(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "Alice", "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/workspaces", map[string]string{"name": "My forms"}, user)
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeData(t, rec)
	var ws models.Workspace
	require.NoError(t, json.Unmarshal(data["workspace"], &ws))
	assert.Equal(t, user.ID, ws.OwnerID)
	assert.Equal(t, "My forms", ws.Name)
}

func TestGetWorkspaceForbiddenForStranger(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	stranger := env.addUser(t, "Eve", "eve@example.com")
	ws := env.addWorkspace(t, owner.ID, "Private")

	rec := env.do(t, http.MethodGet, "/api/workspaces/"+ws.ID, nil, stranger)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestShareWorkspaceAddsGrant(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	target := env.addUser(t, "Bob", "bob@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	rec := env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/share", map[string]string{
		"email":       "bob@example.com",
		"access_type": "edit",
	}, owner)
	require.Equal(t, http.StatusOK, rec.Code)

	grants, err := env.db.ListWorkspaceGrants(ws.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, target.ID, grants[0].UserID)
	assert.Equal(t, models.AccessEdit, grants[0].AccessType)

	// 响应携带更新后的工作区，含分享列表
	data := decodeData(t, rec)
	var updated models.Workspace
	require.NoError(t, json.Unmarshal(data["workspace"], &updated))
	require.Len(t, updated.SharedWith, 1)
}

func TestShareWorkspaceDuplicateIsConflict(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	env.addUser(t, "Bob", "bob@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	body := map[string]string{"email": "bob@example.com", "access_type": "view"}
	rec := env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/share", body, owner)
	require.Equal(t, http.StatusOK, rec.Code)

	// 第二次分享（即使换了权限级别）返回409，已有grant不变
	body["access_type"] = "edit"
	rec = env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/share", body, owner)
	require.Equal(t, http.StatusConflict, rec.Code)

	grants, err := env.db.ListWorkspaceGrants(ws.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, models.AccessView, grants[0].AccessType)
}

func TestShareWorkspaceInvalidAccessTypeCheckedFirst(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	// access_type非法时返回400，即使email也不存在
	rec := env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/share", map[string]string{
		"email":       "nobody@example.com",
		"access_type": "admin",
	}, owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShareWorkspaceUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	rec := env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/share", map[string]string{
		"email":       "nobody@example.com",
		"access_type": "view",
	}, owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShareWorkspaceOnlyOwnerCanShare(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	member := env.addUser(t, "Bob", "bob@example.com")
	env.addUser(t, "Carol", "carol@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	_, err := env.db.InsertWorkspaceGrant(&models.AccessGrant{
		WorkspaceID: ws.ID, UserID: member.ID, AccessType: models.AccessEdit,
	})
	require.NoError(t, err)

	// edit权限也不能分享，只有owner可以
	rec := env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/share", map[string]string{
		"email":       "carol@example.com",
		"access_type": "view",
	}, member)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestShareWorkspaceWithOwnerEmail(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	rec := env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/share", map[string]string{
		"email":       "alice@example.com",
		"access_type": "view",
	}, owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateAndJoinShareLink(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	joiner := env.addUser(t, "Bob", "bob@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	rec := env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/share-link", map[string]string{
		"access_type": "view",
	}, owner)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, rec)
	var token string
	require.NoError(t, json.Unmarshal(data["token"], &token))
	var link string
	require.NoError(t, json.Unmarshal(data["link"], &link))
	assert.Contains(t, link, "token=")

	rec = env.do(t, http.MethodPost, "/api/workspaces/join?token="+url.QueryEscape(token), nil, joiner)
	require.Equal(t, http.StatusOK, rec.Code)

	grants, err := env.db.ListWorkspaceGrants(ws.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, joiner.ID, grants[0].UserID)
	assert.Equal(t, models.AccessView, grants[0].AccessType)
}

func TestJoinShareLinkIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	joiner := env.addUser(t, "Bob", "bob@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	svc := utils.NewShareLinkService(env.cfg.ShareLinkSecret, env.cfg.BaseURL)
	token, err := svc.GenerateToken(ws.ID, models.AccessEdit, owner.ID)
	require.NoError(t, err)

	target := "/api/workspaces/join?token=" + url.QueryEscape(token)
	rec := env.do(t, http.MethodPost, target, nil, joiner)
	require.Equal(t, http.StatusOK, rec.Code)

	// 重复兑换是成功而不是错误，grant数量不变
	rec = env.do(t, http.MethodPost, target, nil, joiner)
	require.Equal(t, http.StatusOK, rec.Code)

	grants, err := env.db.ListWorkspaceGrants(ws.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
}

func TestJoinShareLinkByOwnerIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	svc := utils.NewShareLinkService(env.cfg.ShareLinkSecret, env.cfg.BaseURL)
	token, err := svc.GenerateToken(ws.ID, models.AccessView, owner.ID)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/workspaces/join?token="+url.QueryEscape(token), nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)

	// owner不会给自己建立grant
	grants, err := env.db.ListWorkspaceGrants(ws.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 0)
}

func TestJoinExpiredShareLink(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	joiner := env.addUser(t, "Bob", "bob@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	svc := utils.NewShareLinkServiceWithTTL(env.cfg.ShareLinkSecret, env.cfg.BaseURL, -time.Minute)
	token, err := svc.GenerateToken(ws.ID, models.AccessView, owner.ID)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/workspaces/join?token="+url.QueryEscape(token), nil, joiner)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestJoinInvalidShareLink(t *testing.T) {
	env := newTestEnv(t)
	joiner := env.addUser(t, "Bob", "bob@example.com")

	rec := env.do(t, http.MethodPost, "/api/workspaces/join?token=garbage", nil, joiner)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid share link")
}

func TestJoinShareLinkForDeletedWorkspace(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	joiner := env.addUser(t, "Bob", "bob@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	svc := utils.NewShareLinkService(env.cfg.ShareLinkSecret, env.cfg.BaseURL)
	token, err := svc.GenerateToken(ws.ID, models.AccessView, owner.ID)
	require.NoError(t, err)

	// 链接签发后工作区被删除
	require.NoError(t, env.db.DeleteWorkspace(ws.ID))

	rec := env.do(t, http.MethodPost, "/api/workspaces/join?token="+url.QueryEscape(token), nil, joiner)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateShareLinkOnlyOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	member := env.addUser(t, "Bob", "bob@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	_, err := env.db.InsertWorkspaceGrant(&models.AccessGrant{
		WorkspaceID: ws.ID, UserID: member.ID, AccessType: models.AccessEdit,
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/share-link", map[string]string{
		"access_type": "view",
	}, member)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteWorkspaceOnlyOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Alice", "alice@example.com")
	member := env.addUser(t, "Bob", "bob@example.com")
	ws := env.addWorkspace(t, owner.ID, "Team forms")

	_, err := env.db.InsertWorkspaceGrant(&models.AccessGrant{
		WorkspaceID: ws.ID, UserID: member.ID, AccessType: models.AccessEdit,
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodDelete, "/api/workspaces/"+ws.ID, nil, member)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/workspaces/"+ws.ID, nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = env.db.GetWorkspace(ws.ID)
	assert.Error(t, err)
}
