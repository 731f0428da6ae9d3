package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	out     io.Writer
	json    bool
	save    bool
	dryRun  bool
	path    string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithOutput sets where Scan and Apply print their results.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithJSON makes Scan print the result as JSON.
func WithJSON(enabled bool) Option {
	return func(a *application) {
		a.json = enabled
	}
}

// WithSave makes Scan store the result in the index.
func WithSave(enabled bool) Option {
	return func(a *application) {
		a.save = enabled
	}
}

// WithDryRun makes Apply report the links without writing any note.
func WithDryRun(enabled bool) Option {
	return func(a *application) {
		a.dryRun = enabled
	}
}

// WithNotePath limits Apply to one note.
func WithNotePath(path string) Option {
	return func(a *application) {
		a.path = path
	}
}
