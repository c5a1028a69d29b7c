package api

import (
	"context"
	"time"
)

// UserDTO 用户资料 DTO
type UserDTO struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// AuthURLResponse 授权地址响应
type AuthURLResponse struct {
	AuthURL string `json:"auth_url"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	APIToken string  `json:"api_token"`
	User     UserDTO `json:"user"`
}

// MailboxDTO 邮箱 DTO
type MailboxDTO struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMailboxesResponse 邮箱列表响应
type ListMailboxesResponse struct {
	Mailboxes []MailboxDTO `json:"mailboxes"`
}

// EmailSummary 邮件列表项
type EmailSummary struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// ListEmailsResponse 邮件列表响应
type ListEmailsResponse struct {
	Emails []EmailSummary `json:"emails"`
}

// AttachmentDTO 附件 DTO
type AttachmentDTO struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// EmailDetail 邮件详情
type EmailDetail struct {
	ID          int64           `json:"id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Subject     string          `json:"subject"`
	Content     string          `json:"content"`
	CreatedAt   time.Time       `json:"created_at"`
	Attachments []AttachmentDTO `json:"attachments"`
}

// DomainsResponse 域名列表响应
type DomainsResponse struct {
	Domains []string `json:"domains"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

// AuthService 鉴权服务接口（由 service 层实现）
type AuthService interface {
	AuthURL(ctx context.Context, state string) (*AuthURLResponse, error)
	Login(ctx context.Context, code, state string) (*LoginResponse, error)
	// CurrentUser returns the user the auth middleware put into ctx.
	CurrentUser(ctx context.Context) (*UserDTO, error)
}

// MailService 邮箱服务接口（由 service 层实现），用户取自 ctx
type MailService interface {
	Domains() *DomainsResponse
	CreateMailbox(ctx context.Context) (*MailboxDTO, error)
	ListMailboxes(ctx context.Context) (*ListMailboxesResponse, error)
	ListEmails(ctx context.Context, email string) (*ListEmailsResponse, error)
	GetEmail(ctx context.Context, id int64) (*EmailDetail, error)
}
