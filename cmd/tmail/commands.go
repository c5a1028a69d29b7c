package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tmail/internal/flow"
	"tmail/internal/session"
	"tmail/internal/view"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the local session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		nav := &terminalNavigator{baseURL: c.cfg.Client.APIBaseURL}
		v := view.NewAuthView(c.store, c.controller(nav), nav)
		v.Logout(ctx)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who is logged in",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		nav := &terminalNavigator{baseURL: c.cfg.Client.APIBaseURL}
		v := view.NewAuthView(c.store, c.controller(nav), nav)
		v.Refresh(ctx)
		if !v.Model().LoggedIn {
			pterm.Info.Println("Not logged in. Run `tmail login`.")
			return nil
		}
		pterm.Println(v.Render())
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow session changes made by other tmail processes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		nav := &terminalNavigator{baseURL: c.cfg.Client.APIBaseURL}
		v := view.NewAuthView(c.store, c.controller(nav), nav, view.OnRender(func(m view.AuthModel) {
			pterm.Printfln("%s  %s", pterm.Gray(time.Now().Format(time.TimeOnly)), view.RenderAuth(m))
		}))
		if err := v.Mount(ctx); err != nil {
			return err
		}
		defer v.Unmount()

		pterm.Info.Println("Watching the session, Ctrl-C to stop")
		<-ctx.Done()
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Fetch the logged in user's profile from the server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		sess, err := c.store.Load(ctx)
		if err != nil {
			return err
		}
		if sess == nil {
			return errors.New("not logged in, run `tmail login` first")
		}

		user, err := c.api.Profile(ctx, sess.APIToken)
		var statusErr *flow.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return errors.New("the server no longer accepts this session, run `tmail login --force`")
		}
		if err != nil {
			return fmt.Errorf("failed to fetch profile: %w", err)
		}

		return pterm.DefaultTable.WithData(pterm.TableData{
			{"id", strconv.FormatInt(user.ID, 10)},
			{"username", user.Username},
			{"email", user.Email},
			{"avatar", user.AvatarURL},
		}).Render()
	},
}

var (
	noticeToday bool
	noticeForce bool
)

var noticeCmd = &cobra.Command{
	Use:   "notice",
	Short: "Show the usage notice unless it was dismissed today",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		gate := session.NewDisclosureGate(c.storage, nil)
		if !gate.Mount(ctx) && !noticeForce {
			return nil
		}

		items := make([]pterm.BulletListItem, 0, len(session.DisclosureNotice))
		for _, line := range session.DisclosureNotice {
			items = append(items, pterm.BulletListItem{Level: 0, Text: line, Bullet: "❗"})
		}
		pterm.DefaultSection.Println("重要提示")
		if err := pterm.DefaultBulletList.WithItems(items).Render(); err != nil {
			return err
		}

		if noticeToday {
			return gate.DismissToday(ctx)
		}
		gate.Dismiss()
		return nil
	},
}

func init() {
	noticeCmd.Flags().BoolVar(&noticeToday, "today", false, "do not show the notice again today")
	noticeCmd.Flags().BoolVar(&noticeForce, "force", false, "show the notice even if it was dismissed today")
}
