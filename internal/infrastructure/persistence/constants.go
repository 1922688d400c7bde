package persistence

// Table names for the policy store.
const (
	TableAllowlistProfiles = "db_allowlist_profiles"
	TableQueryTemplates    = "query_templates"
	TableQueryLogs         = "query_logs"
)

// DefaultProfileName is the profile EnsureDefault seeds when the store is
// empty.
const DefaultProfileName = "default"
