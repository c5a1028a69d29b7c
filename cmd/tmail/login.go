package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tmail/internal/view"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// callbackPath must match the path of the server's configured redirect URL.
const callbackPath = "/login/callback"

var (
	noBrowser  bool
	forceLogin bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the identity provider",
	Long: `login asks the server for an authorization URL, opens it in a browser and
waits on client.callback_addr for the provider to redirect back with a code.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	loginCmd.Flags().BoolVar(&forceLogin, "force", false, "sign in again even if a session exists")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	sess, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read the stored session: %w", err)
	}
	if sess != nil && !forceLogin {
		pterm.Info.Printfln("Already logged in as %s", pterm.LightGreen(sess.User.Username))
		return nil
	}

	ln, err := net.Listen("tcp", c.cfg.Client.CallbackAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for the callback: %w", err)
	}

	nav := &terminalNavigator{baseURL: c.cfg.Client.APIBaseURL, openBrowser: !noBrowser}
	ctrl := c.controller(nav)

	result := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		page := view.NewCallbackView(ctrl)
		err := page.Mount(r.Context(), r.URL.Query())

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, page.Render())
		} else {
			fmt.Fprintln(w, "Logged in. You can close this window.")
		}

		select {
		case result <- err:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		if err := ctrl.Begin(gctx); err != nil {
			return err
		}

		spinner, _ := pterm.DefaultSpinner.Start("Waiting for the provider to redirect back...")
		select {
		case err := <-result:
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			spinner.Success("Authorization code exchanged")
			return nil
		case <-gctx.Done():
			spinner.Warning("Login cancelled")
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	sess, err = c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read the stored session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("login finished but no session was stored")
	}
	pterm.Success.Printfln("Logged in as %s (%s)", pterm.LightGreen(sess.User.Username), sess.User.Email)
	return nil
}
