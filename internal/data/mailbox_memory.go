package data

import (
	"context"
	"slices"
	"sync"

	"tmail/internal/biz"
)

var _ biz.MailboxRepo = (*memoryMailboxRepo)(nil)

// memoryMailboxRepo 内存邮箱仓库
type memoryMailboxRepo struct {
	mu        sync.RWMutex
	mailboxes map[string]biz.Mailbox
	envelopes map[int64]biz.Envelope
	byMailbox map[string][]int64
	nextID    int64
}

// NewMemoryMailboxRepo 创建内存邮箱仓库
func NewMemoryMailboxRepo() biz.MailboxRepo {
	return &memoryMailboxRepo{
		mailboxes: make(map[string]biz.Mailbox),
		envelopes: make(map[int64]biz.Envelope),
		byMailbox: make(map[string][]int64),
	}
}

func (r *memoryMailboxRepo) Create(_ context.Context, mb *biz.Mailbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mailboxes[mb.Email]; ok {
		return biz.ErrMailboxExists
	}
	r.mailboxes[mb.Email] = *mb
	return nil
}

func (r *memoryMailboxRepo) Get(_ context.Context, email string) (*biz.Mailbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mb, ok := r.mailboxes[email]
	if !ok {
		return nil, biz.ErrMailboxNotFound
	}
	return &mb, nil
}

// ListByUser 按创建时间倒序返回
func (r *memoryMailboxRepo) ListByUser(_ context.Context, userID int64) ([]biz.Mailbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []biz.Mailbox
	for _, mb := range r.mailboxes {
		if mb.UserID == userID {
			out = append(out, mb)
		}
	}
	slices.SortFunc(out, func(a, b biz.Mailbox) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (r *memoryMailboxRepo) Deliver(_ context.Context, env *biz.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mailboxes[env.Mailbox]; !ok {
		return biz.ErrMailboxNotFound
	}
	r.nextID++
	env.ID = r.nextID
	r.envelopes[env.ID] = *env
	r.byMailbox[env.Mailbox] = append(r.byMailbox[env.Mailbox], env.ID)
	return nil
}

// ListEnvelopes 最新的邮件在前
func (r *memoryMailboxRepo) ListEnvelopes(_ context.Context, email string) ([]biz.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byMailbox[email]
	out := make([]biz.Envelope, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, r.envelopes[ids[i]])
	}
	return out, nil
}

func (r *memoryMailboxRepo) GetEnvelope(_ context.Context, id int64) (*biz.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	env, ok := r.envelopes[id]
	if !ok {
		return nil, biz.ErrEnvelopeNotFound
	}
	return &env, nil
}
