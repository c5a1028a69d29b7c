package session

import (
	"context"
	"log/slog"
	"time"

	"tmail/internal/webstore"
)

// KeyDisclosureLastShown holds the day the notice was last dismissed for the day.
const KeyDisclosureLastShown = "disclosureModalLastShown"

// dayLayout 与浏览器 Date.toDateString() 相同，例如 "Mon Jan 02 2006"
const dayLayout = "Mon Jan 02 2006"

// DisclosureNotice lists the terms shown before first use each day.
var DisclosureNotice = []string{
	"接收到的邮件内容仅能保留10天",
	"随机生成的邮箱地址任何人都可以使用，请勿用于注册重要账号",
	"请勿发送包含敏感信息的邮件至该邮箱",
	"本服务不保证100%稳定可用，可能会出现无法接收邮件的情况",
	"请勿将该邮箱用于垃圾邮件发送等违法行为，否则后果自负",
	"使用本服务即表示您已知悉并同意以上事项",
}

// DisclosureGate decides whether the disclosure notice is shown.
type DisclosureGate struct {
	storage webstore.Storage
	now     func() time.Time
	logger  *slog.Logger
	visible bool
}

// NewDisclosureGate creates a gate; now defaults to time.Now.
func NewDisclosureGate(storage webstore.Storage, now func() time.Time) *DisclosureGate {
	if now == nil {
		now = time.Now
	}
	return &DisclosureGate{storage: storage, now: now, logger: slog.Default().With("component", "disclosure")}
}

func (g *DisclosureGate) today() string {
	return g.now().Format(dayLayout)
}

// ShouldShow reports whether the stored day differs from today. Storage errors show the notice.
func (g *DisclosureGate) ShouldShow(ctx context.Context) bool {
	last, ok, err := g.storage.Get(ctx, KeyDisclosureLastShown)
	if err != nil {
		g.logger.Warn("failed to read disclosure flag", "error", err)
		return true
	}
	return !ok || last != g.today()
}

// Mount evaluates ShouldShow once and opens the notice accordingly.
func (g *DisclosureGate) Mount(ctx context.Context) bool {
	g.visible = g.ShouldShow(ctx)
	return g.visible
}

// Visible reports whether the notice is currently open.
func (g *DisclosureGate) Visible() bool { return g.visible }

// Dismiss closes the notice without persisting anything; the next Mount shows it again.
func (g *DisclosureGate) Dismiss() {
	g.visible = false
}

// DismissToday closes the notice and suppresses it until the day changes.
func (g *DisclosureGate) DismissToday(ctx context.Context) error {
	g.visible = false
	return g.storage.Set(ctx, KeyDisclosureLastShown, g.today())
}
