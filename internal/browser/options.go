// internal/browser/options.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/kiteauth/internal/config"
)

// allocatorFlags collects the command line switches for the browser process.
// Config args of the form "--key=value" become string flags; bare args are
// boolean switches.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"no-sandbox":                          true,
		"disable-gpu":                         true,
		"no-first-run":                        true,
		"no-default-browser-check":            true,
		"enable-automation":                   true,
		"disable-popup-blocking":              true,
		"disable-search-engine-choice-screen": true,
	}
	if cfg.Headless {
		flags["headless"] = true
		flags["hide-scrollbars"] = true
		flags["mute-audio"] = true
	} else {
		flags["start-maximized"] = true
	}
	if cfg.ProfileDirectory != "" {
		flags["profile-directory"] = cfg.ProfileDirectory
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = value
		} else {
			flags[arg] = true
		}
	}
	return flags
}

// AllocatorOptions builds the exec allocator options for cfg. Paths accept a
// leading "~".
func AllocatorOptions(cfg config.BrowserConfig) ([]chromedp.ExecAllocatorOption, error) {
	var opts []chromedp.ExecAllocatorOption
	for key, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(key, value))
	}

	if cfg.ExecPath != "" {
		path, err := homedir.Expand(cfg.ExecPath)
		if err != nil {
			return nil, fmt.Errorf("invalid browser exec path: %w", err)
		}
		opts = append(opts, chromedp.ExecPath(path))
	}
	if cfg.UserDataDir != "" {
		dir, err := homedir.Expand(cfg.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("invalid browser user data dir: %w", err)
		}
		opts = append(opts, chromedp.UserDataDir(dir))
	}
	return opts, nil
}
