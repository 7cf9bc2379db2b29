// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken 表示 token 无法通过验证。
var ErrInvalidToken = errors.New("invalid token")

// JWTManager 负责管理访客 token 的生成和验证。
type JWTManager struct {
	secretKey []byte
	tokenDur  time.Duration
}

// VisitorClaims 是访客 token 中携带的声明。访客没有账号，只有一个随机 ID。
type VisitorClaims struct {
	VisitorID string `json:"visitorId"`
	Language  string `json:"lang,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
// secret: 用于签名的密钥字符串。
// expireHours: token 的过期时间（小时）。
func NewJWTManager(secret string, expireHours int) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Hour * time.Duration(expireHours),
	}
}

// IssueVisitorToken 为新访客分配 ID 并签发 token；visitorID 非空时为已有访客续签。
func (m *JWTManager) IssueVisitorToken(visitorID, language string) (string, *VisitorClaims, error) {
	if visitorID == "" {
		visitorID = uuid.NewString()
	}
	now := time.Now()
	claims := &VisitorClaims{
		VisitorID: visitorID,
		Language:  language,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   visitorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// VerifyToken 验证给定的 token 字符串。
// 如果 token 有效，它会返回 VisitorClaims 对象。
func (m *JWTManager) VerifyToken(tokenString string) (*VisitorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &VisitorClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*VisitorClaims); ok && token.Valid && claims.VisitorID != "" {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
