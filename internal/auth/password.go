package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"eCard/internal/errcode"
)

// PasswordCost 是 bcrypt 的轮数（2^10）。
const PasswordCost = 10

// MaxPasswordBytes 是 bcrypt 能处理的最大密码长度。
const MaxPasswordBytes = 72

// PasswordTooLongMessage 是密码超过 MaxPasswordBytes 时返回给调用方的提示。
const PasswordTooLongMessage = "Password must be at most 72 bytes"

// HashPassword 使用 bcrypt 生成加盐密码哈希。超长密码返回 ErrValidation。
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", errcode.New(errcode.ErrValidation, PasswordTooLongMessage)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash 校验密码是否匹配哈希。
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
