package service

import (
	"context"

	"tmail/internal/api"
	"tmail/internal/auth"
	"tmail/internal/biz"
)

// authService 鉴权服务实现
type authService struct {
	authUsecase *biz.AuthUsecase
}

// NewAuthService 创建 AuthService
func NewAuthService(authUsecase *biz.AuthUsecase) api.AuthService {
	return &authService{
		authUsecase: authUsecase,
	}
}

// AuthURL 生成授权地址
func (s *authService) AuthURL(ctx context.Context, state string) (*api.AuthURLResponse, error) {
	req, err := s.authUsecase.AuthorizationURL(ctx, state)
	if err != nil {
		return nil, err
	}
	return &api.AuthURLResponse{AuthURL: req.AuthURL}, nil
}

// Login 换取令牌，进行 DTO 转换
func (s *authService) Login(ctx context.Context, code, state string) (*api.LoginResponse, error) {
	login, err := s.authUsecase.ExchangeCode(ctx, code, state)
	if err != nil {
		return nil, err
	}

	// biz response -> api DTO
	return &api.LoginResponse{
		APIToken: login.Token,
		User:     toUserDTO(&login.User),
	}, nil
}

// CurrentUser 返回中间件注入的用户
func (s *authService) CurrentUser(ctx context.Context) (*api.UserDTO, error) {
	user, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return nil, biz.ErrUnauthorized
	}
	dto := toUserDTO(user)
	return &dto, nil
}

func toUserDTO(p *biz.UserProfile) api.UserDTO {
	return api.UserDTO{
		ID:        p.ID,
		Username:  p.Username,
		Email:     p.Email,
		AvatarURL: p.AvatarURL,
	}
}
