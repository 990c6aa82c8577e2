package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const localIssuer = "shipchange"

// LocalClaims 本地签发的 JWT 声明
type LocalClaims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenIssuer 本地 HS256 Token 签发与校验
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer 创建本地 Token 签发器
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue 为用户签发 Token
func (i *TokenIssuer) Issue(userID uint, username string, roles []string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, errors.New("token secret is not configured")
	}
	now := i.now()
	expires := now.Add(i.ttl)
	claims := LocalClaims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    localIssuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify 实现 TokenVerifier
func (i *TokenIssuer) Verify(_ context.Context, tokenString string) (*Actor, error) {
	if len(i.secret) == 0 {
		return nil, errors.New("token secret is not configured")
	}
	claims := &LocalClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	uid := uint(id)
	return &Actor{UserID: &uid, Subject: claims.Subject, Username: claims.Username, Roles: claims.Roles}, nil
}

// TokenVerifier 校验 Bearer Token 并返回操作人
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Actor, error)
}

// ChainVerifier 依次尝试多个校验器，返回第一个成功结果
type ChainVerifier []TokenVerifier

// Verify 实现 TokenVerifier
func (c ChainVerifier) Verify(ctx context.Context, token string) (*Actor, error) {
	var errs []error
	for _, v := range c {
		if v == nil {
			continue
		}
		actor, err := v.Verify(ctx, token)
		if err == nil {
			return actor, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	return nil, errors.Join(errs...)
}
