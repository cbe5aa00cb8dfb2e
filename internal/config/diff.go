package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked; everything else needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged means the voice section differs; the runtime settings
	// should be reseeded.
	VoiceChanged bool

	// AdminKeyChanged means the admin bearer token was rotated.
	AdminKeyChanged bool

	// SearchURLChanged means the search service endpoint moved.
	SearchURLChanged bool
}

// Changed reports whether anything hot-reloadable differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VoiceChanged || d.AdminKeyChanged || d.SearchURLChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !voiceEqual(old.Voice, new.Voice) {
		d.VoiceChanged = true
	}
	if old.Admin.APIKey != new.Admin.APIKey {
		d.AdminKeyChanged = true
	}
	if old.Search.ServiceURL != new.Search.ServiceURL {
		d.SearchURLChanged = true
	}
	return d
}

// voiceEqual compares voice sections, treating the BargeInEnabled pointer by
// value.
func voiceEqual(a, b VoiceConfig) bool {
	ap, bp := a.BargeInEnabled, b.BargeInEnabled
	a.BargeInEnabled, b.BargeInEnabled = nil, nil
	if a != b {
		return false
	}
	if (ap == nil) != (bp == nil) {
		return false
	}
	return ap == nil || *ap == *bp
}
