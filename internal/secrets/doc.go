// Package secrets redacts credentials from text before it leaves the hook
// process.
//
// Detection uses the Gitleaks default rule set. Matches are replaced with
// [REDACTED:<rule-id>] markers. Allowlists are read from the project's
// .gitleaks.toml and an optional user allowlist file:
//
//	[allowlist]
//	regexes = ['''EXAMPLE_[A-Z]+''']
package secrets
