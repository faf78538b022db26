package profile

import (
	"context"
	"fmt"
	"strings"

	"eCard/internal/errcode"
)

// Service 提供按 id / name / share id 读取与整体保存资料的能力。
//
// 保存采用最后写入者获胜，没有版本号或乐观锁：同一账号在多个标签页同时保存时，
// 后到达的请求会直接覆盖前一次的结果。
type Service struct {
	store Store
}

// NewService 构造 Service。
func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) GetByID(ctx context.Context, id uint) (Profile, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return FromUser(*user), nil
}

// GetByName 供公开分享与下载页面使用。
func (s *Service) GetByName(ctx context.Context, name string) (Profile, error) {
	user, err := s.store.FindByName(ctx, name)
	if err != nil {
		return Profile{}, err
	}
	return FromUser(*user), nil
}

func (s *Service) GetByShareID(ctx context.Context, shareID string) (Profile, error) {
	user, err := s.store.FindByShareID(ctx, shareID)
	if err != nil {
		return Profile{}, err
	}
	return FromUser(*user), nil
}

// Save 覆盖 id 对应用户的全部资料字段并返回更新后的记录。
// 非空的 in.Name 表示改名，改名前会检查是否与其他用户重名。
func (s *Service) Save(ctx context.Context, id uint, in SaveInput) (Profile, error) {
	if id == 0 {
		return Profile{}, errcode.New(errcode.ErrValidation, "User ID is required")
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name != "" {
		taken, err := s.store.NameTakenByOther(ctx, in.Name, id)
		if err != nil {
			return Profile{}, err
		}
		if taken {
			return Profile{}, errcode.New(errcode.ErrConflict, "Username already taken")
		}
	}

	if err := s.store.UpdateProfile(ctx, id, in); err != nil {
		return Profile{}, fmt.Errorf("save profile %d: %w", id, err)
	}
	return s.GetByID(ctx, id)
}
