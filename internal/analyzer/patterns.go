// File path: internal/analyzer/patterns.go
package analyzer

import "regexp"

// Severity levels for findings.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Category is the closed set of high-precision finding categories.
type Category string

const (
	CategorySecretExposure        Category = "secret_exposure"
	CategoryMigrationDestructive  Category = "migration_destructive"
	CategoryAuthMiddlewareRemoved Category = "auth_middleware_removed"
	CategoryDependencyChanged     Category = "dependency_changed"
	CategoryEnvLeaked             Category = "env_leaked"
	CategoryPrivateKeyExposed     Category = "private_key_exposed"
)

// exactPattern is one entry of the closed secret catalog. Precision is the
// whole point: a pattern joins this list only when a match is near-certainly
// a real credential.
type exactPattern struct {
	re       *regexp.Regexp
	name     string
	category Category
	severity Severity
}

var exactPatterns = []exactPattern{
	{regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`), "GitHub Personal Access Token", CategorySecretExposure, SeverityCritical},
	{regexp.MustCompile(`github_pat_[A-Za-z0-9]{22}_[A-Za-z0-9]{59}`), "GitHub Fine-grained PAT", CategorySecretExposure, SeverityCritical},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS Access Key ID", CategorySecretExposure, SeverityCritical},
	{regexp.MustCompile(`sk_live_[A-Za-z0-9]{24,}`), "Stripe Live Secret Key", CategorySecretExposure, SeverityCritical},
	{regexp.MustCompile(`pk_live_[A-Za-z0-9]{24,}`), "Stripe Live Publishable Key", CategorySecretExposure, SeverityWarning},
	{regexp.MustCompile(`xoxb-\d{11,13}-\d{11,13}-[A-Za-z0-9]{24}`), "Slack Bot Token", CategorySecretExposure, SeverityCritical},
	{regexp.MustCompile(`xoxp-\d{11,13}-\d{11,13}-[A-Za-z0-9]{24}`), "Slack User Token", CategorySecretExposure, SeverityCritical},
	{regexp.MustCompile(`SG\.[A-Za-z0-9_-]{22}\.[A-Za-z0-9_-]{43}`), "SendGrid API Key", CategorySecretExposure, SeverityCritical},
	// An account SID alone is not a credential; kept as a warning so it can
	// be paired with a nearby auth token by the reviewer.
	{regexp.MustCompile(`AC[a-f0-9]{32}`), "Twilio Account SID", CategorySecretExposure, SeverityWarning},
	{regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`), "Private Key", CategoryPrivateKeyExposed, SeverityCritical},
}

// dangerousFile matches basenames that should never be committed.
type dangerousFile struct {
	re       *regexp.Regexp
	name     string
	category Category
}

var dangerousFiles = []dangerousFile{
	{regexp.MustCompile(`^\.env$`), ".env file committed", CategoryEnvLeaked},
	{regexp.MustCompile(`^\.env\.(local|production|staging)$`), "Environment file committed", CategoryEnvLeaked},
	{regexp.MustCompile(`^(id_rsa|id_ed25519|id_ecdsa)$`), "SSH private key committed", CategoryEnvLeaked},
}

var lockfiles = map[string]struct{}{
	"composer.lock":     {},
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"Gemfile.lock":      {},
	"poetry.lock":       {},
}

// destructiveMigrationPattern mirrors the extractor's migration scan so that
// indexing and diff review agree on what counts as destructive.
type destructiveMigrationPattern struct {
	re     *regexp.Regexp
	name   string
	target int // capture group holding the target, 0 for none
}

var destructiveMigrationPatterns = []destructiveMigrationPattern{
	{regexp.MustCompile(`(?i)Schema::drop(?:IfExists)?\s*\(\s*['"](\w+)['"]`), "DROP TABLE", 1},
	{regexp.MustCompile(`(?i)\$table->dropColumn\s*\(\s*['"](\w+)['"]`), "DROP COLUMN", 1},
	{regexp.MustCompile(`(?i)\$table->dropColumn\s*\(\s*\[([^\]]+)\]`), "DROP COLUMNS", 1},
	{regexp.MustCompile(`(?i)Schema::rename\s*\(`), "RENAME TABLE", 0},
	{regexp.MustCompile(`(?i)\$table->renameColumn\s*\(`), "RENAME COLUMN", 0},
}

var authMiddlewareRemovalRe = regexp.MustCompile(`(?i)->withoutMiddleware\s*\(\s*['"](auth|verified|can|admin)['"]`)

// defaultSkipPaths exempts generated, vendored and binary-adjacent paths
// from secret scanning.
var defaultSkipPaths = []string{
	".lock", ".min.js", ".min.css", ".map",
	".svg", ".png", ".jpg", ".gif", ".ico", ".woff", ".ttf",
	"/vendor/", "/node_modules/", "/dist/", "/build/", "__pycache__",
}
