package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"eCard/internal/database"
	"eCard/internal/errcode"
	"eCard/internal/profile"
)

// InvalidCredentialsMessage 对"用户不存在"与"密码错误"统一返回，避免枚举用户名。
const InvalidCredentialsMessage = "Invalid credentials"

var errInvalidCredentials = errcode.New(errcode.ErrAuth, InvalidCredentialsMessage)

// Account 是注册/登录成功后返回给接口层的最小身份信息。
type Account struct {
	ID                 uint   `json:"id"`
	Name               string `json:"name"`
	MustChangePassword bool   `json:"-"`
}

// Accounts 实现注册、登录与改密，凭据与资料共用 users 表。
type Accounts struct {
	store profile.Store
}

// NewAccounts 构造 Accounts。
func NewAccounts(store profile.Store) *Accounts {
	return &Accounts{store: store}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// dummyPasswordHash 用于用户不存在时仍执行一次 bcrypt 比较，使两种失败耗时接近。
func dummyPasswordHash() string {
	dummyHashOnce.Do(func() {
		dummyHash, _ = HashPassword(uuid.NewString())
	})
	return dummyHash
}

// Register 创建新账号，资料字段为空，并分配稳定的 share id。
func (a *Accounts) Register(ctx context.Context, name, password string) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return Account{}, errcode.New(errcode.ErrValidation, "Username and password are required")
	}

	if _, err := a.store.FindByName(ctx, name); err == nil {
		return Account{}, errcode.New(errcode.ErrConflict, "Username already taken")
	} else if !errors.Is(err, errcode.ErrNotFound) {
		return Account{}, fmt.Errorf("register lookup: %w", err)
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}

	user := database.User{
		Name:         name,
		PasswordHash: hashed,
		ShareID:      uuid.NewString(),
	}
	if err := a.store.Create(ctx, &user); err != nil {
		return Account{}, err
	}

	return Account{ID: user.ID, Name: user.Name}, nil
}

// Login 校验用户名与密码。未知用户与密码错误返回同一个错误。
func (a *Accounts) Login(ctx context.Context, name, password string) (Account, error) {
	if strings.TrimSpace(name) == "" || password == "" {
		return Account{}, errcode.New(errcode.ErrValidation, "Username and password are required")
	}

	user, err := a.store.FindByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, errcode.ErrNotFound) {
			CheckPasswordHash(password, dummyPasswordHash())
			return Account{}, errInvalidCredentials
		}
		return Account{}, fmt.Errorf("login lookup: %w", err)
	}

	if !CheckPasswordHash(password, user.PasswordHash) {
		return Account{}, errInvalidCredentials
	}

	return Account{ID: user.ID, Name: user.Name, MustChangePassword: user.MustChangePassword}, nil
}

// ChangePassword 校验当前密码后写入新哈希，并清除强制改密标记。
func (a *Accounts) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	if strings.TrimSpace(next) == "" {
		return errcode.New(errcode.ErrValidation, "new password is required")
	}
	if strings.TrimSpace(next) == strings.TrimSpace(current) {
		return errcode.New(errcode.ErrValidation, "new password must be different from current password")
	}

	user, err := a.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errcode.ErrNotFound) {
			return errInvalidCredentials
		}
		return err
	}
	if !CheckPasswordHash(current, user.PasswordHash) {
		return errInvalidCredentials
	}

	hashed, err := HashPassword(next)
	if err != nil {
		return err
	}
	return a.store.UpdatePassword(ctx, userID, hashed)
}

// Exists 用于刷新令牌时确认账号仍然存在。
func (a *Accounts) Exists(ctx context.Context, userID uint) (Account, error) {
	user, err := a.store.FindByID(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	return Account{ID: user.ID, Name: user.Name, MustChangePassword: user.MustChangePassword}, nil
}
