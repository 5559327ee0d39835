package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"form-builder-backend/pkg/config"
	"form-builder-backend/pkg/database"
	"form-builder-backend/pkg/models"
	"form-builder-backend/pkg/utils"

	"golang.org/x/crypto/bcrypt"
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

// HealthCheck 健康检查端点
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if err := h.db.HealthCheck(); err != nil {
		dbStatus = "error: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message":     "Form builder API is running",
		"environment": h.config.Environment,
		"database":    dbStatus,
		"time":        time.Now().Format(time.RFC3339),
	})
}

// Register 用户注册
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.UserRegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		utils.WriteBadRequestResponse(w, "Name, email, and password are required.")
		return
	}

	// 邮箱唯一性检查
	if _, err := h.db.GetUserByEmail(req.Email); err == nil {
		utils.WriteConflictResponse(w, "A user with this email already exists.")
		return
	}

	// bcrypt哈希密码
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to hash password: "+err.Error())
		return
	}

	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hash),
	}
	if err := h.db.CreateUser(user); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create user: "+err.Error())
		return
	}

	// 为新用户创建初始工作区
	ws := &models.Workspace{
		OwnerID: user.ID,
		Name:    fmt.Sprintf("%s's workspace", user.Name),
	}
	if err := h.db.CreateWorkspace(ws); err != nil {
		fmt.Printf("[warn] failed to create initial workspace for %s: %v\n", user.Email, err)
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessToken, refreshToken, expiresIn, err := jwtService.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens: "+err.Error())
		return
	}

	utils.WriteCreatedResponse(w, map[string]interface{}{
		"message": "User registered successfully.",
		"user":    user,
		"tokens": map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    expiresIn,
		},
	})
}

// Login 用户登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserLoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		utils.WriteBadRequestResponse(w, "Email and password are required.")
		return
	}

	user, err := h.db.GetUserByEmail(req.Email)
	if err != nil {
		// 不区分"用户不存在"和"密码错误"
		utils.WriteUnauthorizedResponse(w, "Invalid email or password.")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid email or password.")
		return
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessToken, refreshToken, expiresIn, err := jwtService.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens: "+err.Error())
		return
	}

	resp := models.UserLoginResponse{
		User:         *user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Login successful.",
		"user":    resp.User,
		"tokens": map[string]interface{}{
			"access_token":  resp.AccessToken,
			"refresh_token": resp.RefreshToken,
			"expires_in":    resp.ExpiresIn,
		},
	})
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		utils.WriteBadRequestResponse(w, "refresh_token is required")
		return
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessToken, expiresIn, err := jwtService.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired refresh token: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message":      "Token refreshed successfully.",
		"access_token": accessToken,
		"expires_in":   expiresIn,
	})
}

// Logout 用户登出（无状态令牌，由客户端丢弃）
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Logged out successfully.",
	})
}
