package biz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tmail/internal/secure"
)

// Mailbox 临时邮箱
type Mailbox struct {
	Email     string
	UserID    int64
	CreatedAt time.Time
}

// Attachment 附件元信息
type Attachment struct {
	ID          int64
	Filename    string
	ContentType string
	Size        int64
}

// Envelope 邮件
type Envelope struct {
	ID          int64
	Mailbox     string
	From        string
	To          string
	Subject     string
	Content     string
	CreatedAt   time.Time
	Attachments []Attachment
}

// MailboxRepo 邮箱仓库接口
type MailboxRepo interface {
	Create(ctx context.Context, mb *Mailbox) error
	Get(ctx context.Context, email string) (*Mailbox, error)
	ListByUser(ctx context.Context, userID int64) ([]Mailbox, error)
	// Deliver assigns env.ID and stores it under env.Mailbox.
	Deliver(ctx context.Context, env *Envelope) error
	ListEnvelopes(ctx context.Context, email string) ([]Envelope, error)
	GetEnvelope(ctx context.Context, id int64) (*Envelope, error)
}

// ErrMailboxNotFound is returned by MailboxRepo.Get for unknown addresses.
var ErrMailboxNotFound = errors.New("mailbox not found")

const localPartLen = 10

// MailUsecase 邮箱业务逻辑（鉴权核心之外的协作方）
type MailUsecase struct {
	repo    MailboxRepo
	domains []string
	now     func() time.Time
	logger  *slog.Logger
}

// NewMailUsecase 创建 MailUsecase
func NewMailUsecase(repo MailboxRepo, domains []string) *MailUsecase {
	return &MailUsecase{
		repo:    repo,
		domains: domains,
		now:     time.Now,
		logger:  slog.Default().With("component", "mail"),
	}
}

// Domains 返回可用域名
func (uc *MailUsecase) Domains() []string {
	return append([]string(nil), uc.domains...)
}

// CreateMailbox 为用户创建随机地址的邮箱，并投递一封欢迎邮件
func (uc *MailUsecase) CreateMailbox(ctx context.Context, user *UserProfile) (*Mailbox, error) {
	if len(uc.domains) == 0 {
		return nil, wrapError("create mailbox", errors.New("no mail domain configured"))
	}

	var mb *Mailbox
	for attempt := 0; attempt < mintMaxAttempts; attempt++ {
		local, err := secure.LowerAlnum(localPartLen)
		if err != nil {
			return nil, wrapError("create mailbox", err)
		}
		mb = &Mailbox{
			Email:     local + "@" + uc.domains[0],
			UserID:    user.ID,
			CreatedAt: uc.now().UTC(),
		}
		err = uc.repo.Create(ctx, mb)
		if errors.Is(err, ErrMailboxExists) {
			mb = nil
			continue
		}
		if err != nil {
			return nil, wrapError("create mailbox", err)
		}
		break
	}
	if mb == nil {
		return nil, wrapError("create mailbox", ErrMailboxExists)
	}

	welcome := &Envelope{
		Mailbox:   mb.Email,
		From:      "noreply@" + uc.domains[0],
		To:        mb.Email,
		Subject:   "Welcome to Tmail",
		Content:   fmt.Sprintf("<p>%s is ready. Messages are kept for 10 days.</p>", mb.Email),
		CreatedAt: mb.CreatedAt,
	}
	// 欢迎邮件尽力投递，失败不影响已创建的邮箱
	if err := uc.repo.Deliver(ctx, welcome); err != nil {
		uc.logger.Warn("failed to deliver welcome message",
			"mailbox", mb.Email,
			"user_id", user.ID,
			"error", err,
		)
	}
	return mb, nil
}

// ListMailboxes 列出用户的邮箱
func (uc *MailUsecase) ListMailboxes(ctx context.Context, user *UserProfile) ([]Mailbox, error) {
	return uc.repo.ListByUser(ctx, user.ID)
}

// ListEnvelopes 列出邮箱中的邮件，邮箱必须属于该用户
func (uc *MailUsecase) ListEnvelopes(ctx context.Context, user *UserProfile, email string) ([]Envelope, error) {
	if email == "" {
		return nil, ErrMissingEmail
	}
	mb, err := uc.repo.Get(ctx, email)
	if errors.Is(err, ErrMailboxNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, wrapError("get mailbox", err)
	}
	if mb.UserID != user.ID {
		return nil, ErrForbidden
	}
	return uc.repo.ListEnvelopes(ctx, email)
}

// GetEnvelope 获取邮件详情；不属于该用户的邮件视为不存在
func (uc *MailUsecase) GetEnvelope(ctx context.Context, user *UserProfile, id int64) (*Envelope, error) {
	env, err := uc.repo.GetEnvelope(ctx, id)
	if err != nil {
		return nil, err
	}
	mb, err := uc.repo.Get(ctx, env.Mailbox)
	if err != nil || mb.UserID != user.ID {
		return nil, ErrEnvelopeNotFound
	}
	return env, nil
}
