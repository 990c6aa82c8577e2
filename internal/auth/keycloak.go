package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeycloakClaims Keycloak JWT 声明
type KeycloakClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

// UserLookup 根据用户名解析本地用户 ID，用于把外部身份映射到审计操作人
type UserLookup func(ctx context.Context, username string) (*uint, error)

// KeycloakTokenValidator Keycloak Token 验证器
type KeycloakTokenValidator struct {
	issuer     string
	jwksURL    string
	jwksCache  *sync.Map
	httpClient *http.Client
	lookup     UserLookup
}

// NewKeycloakTokenValidator 创建 Keycloak Token 验证器，jwksURL 为空时按 issuer 推导
func NewKeycloakTokenValidator(issuer, jwksURL string, lookup UserLookup) *KeycloakTokenValidator {
	if jwksURL == "" {
		jwksURL = fmt.Sprintf("%s/protocol/openid-connect/certs", issuer)
	}
	return &KeycloakTokenValidator{
		issuer:     issuer,
		jwksURL:    jwksURL,
		jwksCache:  &sync.Map{},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		lookup:     lookup,
	}
}

// ValidateToken 验证 Keycloak JWT Token
func (v *KeycloakTokenValidator) ValidateToken(tokenString string) (*KeycloakClaims, error) {
	// 1. 读取 kid
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, &KeycloakClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	kid, ok := unverified.Header["kid"].(string)
	if !ok {
		return nil, errors.New("missing kid in token header")
	}

	// 2. 获取公钥
	publicKey, err := v.GetPublicKey(kid)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	// 3. 验证签名、issuer 与过期时间
	claims := &KeycloakClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return publicKey, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// Verify 实现 TokenVerifier
func (v *KeycloakTokenValidator) Verify(ctx context.Context, tokenString string) (*Actor, error) {
	claims, err := v.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	actor := &Actor{
		Subject:  claims.Subject,
		Username: claims.PreferredUsername,
		Roles:    claims.RealmAccess.Roles,
	}
	if v.lookup != nil && actor.Username != "" {
		if id, err := v.lookup(ctx, actor.Username); err == nil {
			actor.UserID = id
		}
	}
	return actor, nil
}

// GetPublicKey 获取公钥 (从 JWKS 或缓存)
func (v *KeycloakTokenValidator) GetPublicKey(kid string) (*rsa.PublicKey, error) {
	if cached, ok := v.jwksCache.Load(kid); ok {
		return cached.(*rsa.PublicKey), nil
	}

	resp, err := v.httpClient.Get(v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	for _, key := range jwks.Keys {
		if key.Kid != kid || key.Kty != "RSA" {
			continue
		}
		publicKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		v.jwksCache.Store(kid, publicKey)
		return publicKey, nil
	}

	return nil, fmt.Errorf("key not found in JWKS: %s", kid)
}

// parseRSAPublicKey 解析 RSA 公钥
func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode e: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
