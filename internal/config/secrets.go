package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.Gateway.APIKey)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.PagerDutyRoutingKey)
	redact(&out.Notify.SlackWebhookURL)
	redact(&out.Notify.EmailPassword)
	redact(&out.Notify.WebhookSecret)
	redact(&out.Server.APIKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.EmailTo != nil {
		out.Notify.EmailTo = make([]string, len(cfg.Notify.EmailTo))
		copy(out.Notify.EmailTo, cfg.Notify.EmailTo)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Buyback.QuietHoursUTC != nil {
		out.Buyback.QuietHoursUTC = make([]int, len(cfg.Buyback.QuietHoursUTC))
		copy(out.Buyback.QuietHoursUTC, cfg.Buyback.QuietHoursUTC)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
