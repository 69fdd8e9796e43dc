// Package features derives change features of commits: fix keywords in
// messages, test-file detection and per-commit file aggregation.
package features

import (
	"slices"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/maxbolgarin/lang"
)

// DefaultKeywords are the message terms treated as a defect-fix signal
var DefaultKeywords = []string{
	"fix", "fixes", "fixed", "fixing", "bug", "bugfix", "patch",
	"resolve", "resolves", "resolved", "resolving", "close", "closes",
	"closed", "closing", "issue", "error", "correct", "repair",
}

// DefaultTestPatterns are file name globs of test files
var DefaultTestPatterns = []string{
	"*_test.*", "test_*", "test*.py", "*test.py",
	"*test.java", "*tests.java", "*test.js", "*test.ts",
	"*.test.*", "*.spec.*",
}

// DefaultTestDirs are directory names that hold tests
var DefaultTestDirs = []string{"test", "tests", "__tests__"}

// Config holds matching rules, all of them are case-insensitive
type Config struct {
	Keywords     []string `yaml:"keywords" env:"FEATURES_KEYWORDS" env-separator:","`
	TestPatterns []string `yaml:"test_patterns" env:"FEATURES_TEST_PATTERNS" env-separator:","`
	TestDirs     []string `yaml:"test_dirs" env:"FEATURES_TEST_DIRS" env-separator:","`
}

// Matcher checks commit messages and file paths
type Matcher struct {
	keywords     []string
	testPatterns []string
	testDirs     []string
}

// NewMatcher creates a Matcher, empty lists fall back to the defaults
func NewMatcher(cfg Config) *Matcher {
	return &Matcher{
		keywords:     lower(lang.If(len(cfg.Keywords) > 0, cfg.Keywords, DefaultKeywords)),
		testPatterns: lower(lang.If(len(cfg.TestPatterns) > 0, cfg.TestPatterns, DefaultTestPatterns)),
		testDirs:     lower(lang.If(len(cfg.TestDirs) > 0, cfg.TestDirs, DefaultTestDirs)),
	}
}

// Default returns a Matcher with default rules
func Default() *Matcher {
	return NewMatcher(Config{})
}

// HasFixKeyword reports whether msg contains any keyword, ignoring case
func (m *Matcher) HasFixKeyword(msg string) bool {
	msg = strings.ToLower(msg)
	for _, kw := range m.keywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// IsTestPath reports whether path is a test file: it lives under a test
// directory or its file name matches one of the test patterns
func (m *Matcher) IsTestPath(path string) bool {
	path = strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	segments := strings.Split(strings.Trim(path, "/"), "/")
	name := segments[len(segments)-1]
	if name == "" {
		return false
	}

	for _, dir := range segments[:len(segments)-1] {
		if slices.Contains(m.testDirs, dir) {
			return true
		}
	}
	for _, pattern := range m.testPatterns {
		if ok, err := zglob.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// AnyTestPath reports whether any of paths is a test file
func (m *Matcher) AnyTestPath(paths ...string) bool {
	for _, p := range paths {
		if m.IsTestPath(p) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
