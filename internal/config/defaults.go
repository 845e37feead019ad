package config

const (
	defaultTitle       = "Site"
	defaultContentDir  = "content"
	defaultOutputDir   = "public"
	defaultDebounce    = "250ms"
	defaultMaxDelay    = "2s"
	defaultServeAddr   = ":8080"
	defaultHistoryPath = ".sitewright/history.db"
	defaultHistoryKeep = 200
	defaultNATSSubject = "sitewright.builds"
)

// applyDefaults fills in unset fields. Runs before validation so that
// validation only ever sees complete values.
func applyDefaults(cfg *Config) {
	if cfg.Site.Title == "" {
		cfg.Site.Title = defaultTitle
	}

	if cfg.Content.Dir == "" {
		cfg.Content.Dir = defaultContentDir
	}
	cfg.Content.Dir = cleanPath(cfg.Content.Dir)
	cfg.Content.Layouts = cleanPath(cfg.Content.Layouts)
	cfg.Content.Assets = cleanPath(cfg.Content.Assets)

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = defaultOutputDir
	}
	cfg.Output.Dir = cleanPath(cfg.Output.Dir)

	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = defaultDebounce
	}
	if cfg.Watch.MaxDelay == "" {
		cfg.Watch.MaxDelay = defaultMaxDelay
	}

	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = defaultServeAddr
	}

	if cfg.History.Path == "" {
		cfg.History.Path = defaultHistoryPath
	}
	if cfg.History.Keep <= 0 {
		cfg.History.Keep = defaultHistoryKeep
	}

	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = defaultNATSSubject
	}

	cfg.Logging.Level = string(NormalizeLogLevel(cfg.Logging.Level))
	cfg.Logging.Format = string(NormalizeLogFormat(cfg.Logging.Format))
}
