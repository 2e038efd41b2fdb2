// Package scraper is the headless Chromium backend: every worker gets a
// RodSession holding its own browser (or its own tab on a shared one).
package scraper

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/charitybot/config"
	"github.com/use-agent/charitybot/models"
)

// newLauncher builds the Chromium command line for one worker.
func newLauncher(ctx context.Context, cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// Automation markers off; the register serves the same markup either
	// way, but it is behind a CDN that challenges obvious bots.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("window-size"), "1920,1080")
	l.Set(flags.Flag("blink-settings"), "imagesEnabled=false")
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("no-first-run"))
	return l
}

// openBrowser either launches a private Chromium or attaches to
// cfg.ControlURL. The returned launcher is nil when attached.
func openBrowser(ctx context.Context, cfg config.BrowserConfig) (*rod.Browser, *launcher.Launcher, error) {
	controlURL := cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = newLauncher(ctx, cfg)
		u, err := l.Launch()
		if err != nil {
			return nil, nil, models.NewExtractError(models.ErrCodeSessionInit, "failed to launch browser", err)
		}
		controlURL = u
		slog.Debug("browser launched", "controlURL", controlURL)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
		return nil, nil, models.NewExtractError(models.ErrCodeSessionInit, "failed to connect to browser", err)
	}
	return browser, l, nil
}
