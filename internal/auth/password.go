package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher 密码哈希
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// BcryptHasher 基于 bcrypt 的密码哈希
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher 创建 bcrypt 哈希器，cost 非法时使用默认值
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

// Hash 计算密码哈希
func (h *BcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify 校验密码
func (h *BcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
