package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Match  string
}

// Redactor replaces detected secrets with markers. It is safe for
// concurrent use.
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
	logger   *zap.Logger
}

// NewRedactor builds a redactor on the Gitleaks default rules plus the given
// allowlist, which may be nil.
func NewRedactor(allowlist *Allowlist, logger *zap.Logger) (*Redactor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if !allowlist.Empty() {
		if err := applyAllowlist(&detector.Config, allowlist); err != nil {
			return nil, err
		}
	}
	return &Redactor{detector: detector, logger: logger}, nil
}

// applyAllowlist merges allowlist patterns into the Gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	global := &gitleaksConfig.Allowlist{
		Description: "agentkanban project/user allowlist",
		StopWords:   allowlist.StopWords,
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}

// Detect returns the secrets found in content.
func (r *Redactor) Detect(content string) []Finding {
	if content == "" {
		return nil
	}
	r.mu.Lock()
	found := r.detector.DetectString(content)
	r.mu.Unlock()

	out := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		out = append(out, Finding{RuleID: f.RuleID, Match: f.Secret})
	}
	return out
}

// Redact returns content with every detected secret replaced by
// [REDACTED:<rule-id>].
func (r *Redactor) Redact(content string) string {
	findings := r.Detect(content)
	if len(findings) == 0 {
		return content
	}
	// Longest first so a secret containing another is replaced whole.
	sort.SliceStable(findings, func(i, j int) bool {
		return len(findings[i].Match) > len(findings[j].Match)
	})
	for _, f := range findings {
		content = strings.ReplaceAll(content, f.Match, Marker(f.RuleID))
	}
	r.logger.Debug("redacted secrets", zap.Int("count", len(findings)))
	return content
}

// Marker is the replacement text for a secret matched by ruleID.
func Marker(ruleID string) string {
	return "[REDACTED:" + ruleID + "]"
}
