package utils

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"form-builder-backend/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 分享链接错误：签名/结构错误与过期需要区分开，
// 调用方据此返回不同的错误信息
var (
	ErrLinkInvalid = errors.New("share link is invalid")
	ErrLinkExpired = errors.New("share link has expired")
)

// DefaultLinkTTL 分享链接默认有效期（7天）
const DefaultLinkTTL = 7 * 24 * time.Hour

// ShareLinkClaims 分享链接token的载荷
type ShareLinkClaims struct {
	WorkspaceID string            `json:"workspace_id"`
	AccessType  models.AccessType `json:"access_type"`
	SharedBy    string            `json:"shared_by"`
	jwt.RegisteredClaims
}

// ShareLinkService 签发和校验工作区分享链接
// 密钥和BaseURL在进程启动时注入，之后不再变更
type ShareLinkService struct {
	secretKey []byte
	baseURL   string
	ttl       time.Duration
}

// NewShareLinkService 创建分享链接服务
func NewShareLinkService(secretKey, baseURL string) *ShareLinkService {
	return &ShareLinkService{
		secretKey: []byte(secretKey),
		baseURL:   strings.TrimRight(baseURL, "/"),
		ttl:       DefaultLinkTTL,
	}
}

// NewShareLinkServiceWithTTL 创建自定义有效期的分享链接服务
func NewShareLinkServiceWithTTL(secretKey, baseURL string, ttl time.Duration) *ShareLinkService {
	s := NewShareLinkService(secretKey, baseURL)
	s.ttl = ttl
	return s
}

// GenerateToken 为指定工作区签发一个带有效期的分享token
func (s *ShareLinkService) GenerateToken(workspaceID string, accessType models.AccessType, sharedBy string) (string, error) {
	if !accessType.IsValid() {
		return "", fmt.Errorf("invalid access type: %s", accessType)
	}

	now := time.Now()
	claims := &ShareLinkClaims{
		WorkspaceID: workspaceID,
		AccessType:  accessType,
		SharedBy:    sharedBy,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign share token: %w", err)
	}

	return tokenString, nil
}

// GenerateLink 签发token并拼接为完整的分享链接
func (s *ShareLinkService) GenerateLink(workspaceID string, accessType models.AccessType, sharedBy string) (link, token string, err error) {
	token, err = s.GenerateToken(workspaceID, accessType, sharedBy)
	if err != nil {
		return "", "", err
	}
	link = fmt.Sprintf("%s/workspace/join?token=%s", s.baseURL, url.QueryEscape(token))
	return link, token, nil
}

// ValidateToken 校验分享token的签名和有效期
// 过期返回ErrLinkExpired，其余一律返回ErrLinkInvalid
func (s *ShareLinkService) ValidateToken(tokenString string) (*ShareLinkClaims, error) {
	claims := &ShareLinkClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrLinkExpired
		}
		return nil, ErrLinkInvalid
	}

	if !token.Valid {
		return nil, ErrLinkInvalid
	}

	if claims.WorkspaceID == "" || !claims.AccessType.IsValid() {
		return nil, ErrLinkInvalid
	}

	return claims, nil
}
