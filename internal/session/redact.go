package session

// Redact masks personally identifying strings for logs and snapshots. Long
// values keep their first three and last two characters ("+15551234567"
// becomes "+15***67"); anything shorter is fully masked.
func Redact(s string) string {
	if len(s) < 8 {
		return "***"
	}
	return s[:3] + "***" + s[len(s)-2:]
}
