package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags holds the command-line overrides. Only flags the user actually set
// are applied, so environment and file values survive unset flags.
type Flags struct {
	fs *pflag.FlagSet

	baseURL     string
	csrfToken   string
	cookie      string
	project     string
	timeout     time.Duration
	ordering    string
	maxInFlight int
	bootstrap   bool
	paramPrefix string
	logFile     string
	debug       bool
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	d := Default()
	fs.StringVar(&f.baseURL, "base-url", d.BaseURL, "chat backend base URL")
	fs.StringVar(&f.csrfToken, "csrf-token", "", "CSRF token to send as X-CSRFToken")
	fs.StringVar(&f.cookie, "cookie", "", `cookie string to read csrftoken from, e.g. "csrftoken=abc; sessionid=xyz"`)
	fs.StringVar(&f.project, "project", "", "project name sent with each message")
	fs.DurationVar(&f.timeout, "timeout", d.Timeout, "per-request timeout")
	fs.StringVar(&f.ordering, "ordering", d.Ordering, "reply ordering: send or completion")
	fs.IntVar(&f.maxInFlight, "max-in-flight", 0, "maximum concurrent requests (0 = unlimited)")
	fs.BoolVar(&f.bootstrap, "bootstrap", d.Bootstrap, "GET the backend home page first to obtain the csrftoken cookie")
	fs.StringVar(&f.paramPrefix, "param-prefix", "", "AWS SSM parameter prefix holding endpoint, csrf-token and project")
	fs.StringVar(&f.logFile, "log-file", "", "write logs to this file")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	return f
}

// Apply copies every flag the user set onto cfg.
func (f *Flags) Apply(cfg *Config) {
	if f == nil || f.fs == nil {
		return
	}
	set := func(name string, apply func()) {
		if f.fs.Changed(name) {
			apply()
		}
	}
	set("base-url", func() { cfg.BaseURL = f.baseURL })
	set("csrf-token", func() { cfg.CSRFToken = f.csrfToken })
	set("cookie", func() { cfg.Cookie = f.cookie })
	set("project", func() { cfg.Project = f.project })
	set("timeout", func() { cfg.Timeout = f.timeout })
	set("ordering", func() { cfg.Ordering = f.ordering })
	set("max-in-flight", func() { cfg.MaxInFlight = f.maxInFlight })
	set("bootstrap", func() { cfg.Bootstrap = f.bootstrap })
	set("param-prefix", func() { cfg.ParamPrefix = f.paramPrefix })
	set("log-file", func() { cfg.LogFile = f.logFile })
	set("debug", func() { cfg.Debug = f.debug })
}
