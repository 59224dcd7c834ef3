package auth

import (
	"errors"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenNotExpiring = errors.New("token still valid, no need to refresh")
)

// refreshWindow 令牌剩余有效期小于该值时允许刷新
const refreshWindow = time.Hour

// Claims JWT声明结构
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// JWTService JWT服务
type JWTService struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(cfg config.JWTConfig) *JWTService {
	if cfg.ExpireTime <= 0 {
		cfg.ExpireTime = 24
	}
	return &JWTService{cfg: cfg, now: time.Now}
}

// GenerateToken 为用户签发令牌
func (j *JWTService) GenerateToken(user *model.User) (string, error) {
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	}
	if user.Role != nil {
		claims.Role = user.Role.Name
	}
	return j.sign(claims)
}

func (j *JWTService) sign(claims Claims) (string, error) {
	now := j.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(j.cfg.ExpireTime) * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    j.cfg.Issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.cfg.Secret))
}

// ValidateToken 验证JWT令牌
func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(j.cfg.Secret), nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// RefreshToken 令牌即将过期（1小时内）时签发新令牌
func (j *JWTService) RefreshToken(tokenString string) (string, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	if claims.ExpiresAt.Time.Sub(j.now()) > refreshWindow {
		return "", ErrTokenNotExpiring
	}

	return j.sign(Claims{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
		IsAdmin:  claims.IsAdmin,
	})
}

// HasAdmin 管理员标记或 admin 角色均视为管理员
func (c *Claims) HasAdmin() bool {
	return c.IsAdmin || c.Role == model.RoleAdmin
}
