package service

import (
	"context"

	"tmail/internal/api"
	"tmail/internal/auth"
	"tmail/internal/biz"
)

// mailService 邮箱服务实现
type mailService struct {
	mailUsecase *biz.MailUsecase
}

// NewMailService 创建 MailService
func NewMailService(mailUsecase *biz.MailUsecase) api.MailService {
	return &mailService{
		mailUsecase: mailUsecase,
	}
}

func (s *mailService) Domains() *api.DomainsResponse {
	return &api.DomainsResponse{Domains: s.mailUsecase.Domains()}
}

func (s *mailService) CreateMailbox(ctx context.Context) (*api.MailboxDTO, error) {
	user, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return nil, biz.ErrUnauthorized
	}
	mb, err := s.mailUsecase.CreateMailbox(ctx, user)
	if err != nil {
		return nil, err
	}
	dto := toMailboxDTO(mb)
	return &dto, nil
}

func (s *mailService) ListMailboxes(ctx context.Context) (*api.ListMailboxesResponse, error) {
	user, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return nil, biz.ErrUnauthorized
	}
	mailboxes, err := s.mailUsecase.ListMailboxes(ctx, user)
	if err != nil {
		return nil, err
	}

	resp := &api.ListMailboxesResponse{Mailboxes: make([]api.MailboxDTO, 0, len(mailboxes))}
	for i := range mailboxes {
		resp.Mailboxes = append(resp.Mailboxes, toMailboxDTO(&mailboxes[i]))
	}
	return resp, nil
}

func (s *mailService) ListEmails(ctx context.Context, email string) (*api.ListEmailsResponse, error) {
	user, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return nil, biz.ErrUnauthorized
	}
	envelopes, err := s.mailUsecase.ListEnvelopes(ctx, user, email)
	if err != nil {
		return nil, err
	}

	resp := &api.ListEmailsResponse{Emails: make([]api.EmailSummary, 0, len(envelopes))}
	for _, env := range envelopes {
		resp.Emails = append(resp.Emails, api.EmailSummary{
			ID:        env.ID,
			From:      env.From,
			Subject:   env.Subject,
			CreatedAt: env.CreatedAt,
		})
	}
	return resp, nil
}

// GetEmail 邮件详情，附件只返回元信息
func (s *mailService) GetEmail(ctx context.Context, id int64) (*api.EmailDetail, error) {
	user, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return nil, biz.ErrUnauthorized
	}
	env, err := s.mailUsecase.GetEnvelope(ctx, user, id)
	if err != nil {
		return nil, err
	}

	detail := &api.EmailDetail{
		ID:          env.ID,
		From:        env.From,
		To:          env.To,
		Subject:     env.Subject,
		Content:     env.Content,
		CreatedAt:   env.CreatedAt,
		Attachments: make([]api.AttachmentDTO, 0, len(env.Attachments)),
	}
	for _, a := range env.Attachments {
		detail.Attachments = append(detail.Attachments, api.AttachmentDTO{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return detail, nil
}

func toMailboxDTO(mb *biz.Mailbox) api.MailboxDTO {
	return api.MailboxDTO{Email: mb.Email, CreatedAt: mb.CreatedAt}
}
