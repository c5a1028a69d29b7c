package main

import (
	"context"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pterm/pterm"
)

// terminalNavigator opens provider pages in the system browser and reports
// in-app navigations on the terminal.
type terminalNavigator struct {
	baseURL     string
	openBrowser bool
}

func (n *terminalNavigator) Navigate(_ context.Context, target string) error {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		pterm.Info.Printfln("Continue at %s", pterm.LightCyan(strings.TrimRight(n.baseURL, "/")+target))
		return nil
	}

	pterm.Info.Printfln("Open this URL to sign in:\n%s", pterm.LightCyan(target))
	if !n.openBrowser {
		return nil
	}
	if err := browserCommand(target).Start(); err != nil {
		pterm.Warning.Printfln("Could not open a browser: %v", err)
	}
	return nil
}

func (n *terminalNavigator) Reload(context.Context) error {
	pterm.Info.Println("Session cleared")
	return nil
}

func browserCommand(target string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		return exec.Command("xdg-open", target)
	}
}
