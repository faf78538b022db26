package profile

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"eCard/internal/database"
	"eCard/internal/errcode"
)

// Store 抽象 users 表的读写，便于在测试中替换。
type Store interface {
	FindByID(ctx context.Context, id uint) (*database.User, error)
	FindByName(ctx context.Context, name string) (*database.User, error)
	FindByShareID(ctx context.Context, shareID string) (*database.User, error)
	Create(ctx context.Context, user *database.User) error
	UpdateProfile(ctx context.Context, id uint, in SaveInput) error
	NameTakenByOther(ctx context.Context, name string, id uint) (bool, error)
	UpdatePassword(ctx context.Context, id uint, hash string) error
}

// GormStore 是基于 GORM 的 Store 实现。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 构造 GormStore。
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var errUserNotFound = errcode.New(errcode.ErrNotFound, "User not found")

func (s *GormStore) first(ctx context.Context, query string, arg any) (*database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (s *GormStore) FindByID(ctx context.Context, id uint) (*database.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormStore) FindByName(ctx context.Context, name string) (*database.User, error) {
	return s.first(ctx, "name = ?", name)
}

func (s *GormStore) FindByShareID(ctx context.Context, shareID string) (*database.User, error) {
	return s.first(ctx, "share_id = ?", shareID)
}

// Create 插入新用户；唯一索引冲突映射为 ErrConflict。
func (s *GormStore) Create(ctx context.Context, user *database.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errcode.New(errcode.ErrConflict, "Username already taken")
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateProfile 整体覆盖资料字段；Name 为空时保留原名。
func (s *GormStore) UpdateProfile(ctx context.Context, id uint, in SaveInput) error {
	skills := in.Skills
	if skills == nil {
		skills = []string{}
	}
	projects := make([]database.Project, 0, len(in.Projects))
	for _, p := range in.Projects {
		projects = append(projects, database.Project{Name: p.Name, Description: p.Description})
	}

	updates := map[string]any{
		"profession":    in.Profession,
		"photo_url":     in.PhotoURL,
		"resume_url":    in.ResumeURL,
		"portfolio_url": in.PortfolioURL,
		"skills":        datatypes.NewJSONSlice(skills),
		"socials": datatypes.NewJSONType(database.Socials{
			Mail:     in.Socials.Mail,
			Phone:    in.Socials.Phone,
			Linkedin: in.Socials.Linkedin,
			Github:   in.Socials.Github,
			Twitter:  in.Socials.Twitter,
		}),
		"projects": datatypes.NewJSONSlice(projects),
	}
	if in.Name != "" {
		updates["name"] = in.Name
	}

	res := s.db.WithContext(ctx).Model(&database.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return errcode.New(errcode.ErrConflict, "Username already taken")
		}
		return fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errUserNotFound
	}
	return nil
}

// NameTakenByOther 判断 name 是否已被 id 以外的用户占用。
func (s *GormStore) NameTakenByOther(ctx context.Context, name string, id uint) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&database.User{}).
		Where("name = ? AND id <> ?", name, id).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users by name: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) UpdatePassword(ctx context.Context, id uint, hash string) error {
	res := s.db.WithContext(ctx).Model(&database.User{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash":        hash,
		"must_change_password": false,
	})
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errUserNotFound
	}
	return nil
}
