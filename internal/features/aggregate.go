package features

// CommitSummary is what is known about one commit across all of its rows
type CommitSummary struct {
	Files        int
	ChangedTests bool
}

// Aggregator collects distinct file paths per commit hash
type Aggregator struct {
	matcher *Matcher
	files   map[string]map[string]struct{}
	tests   map[string]bool
}

// NewAggregator creates an Aggregator using m for test detection
func NewAggregator(m *Matcher) *Aggregator {
	return &Aggregator{
		matcher: m,
		files:   make(map[string]map[string]struct{}),
		tests:   make(map[string]bool),
	}
}

// Add records that commit touched path
func (a *Aggregator) Add(commit, path string) {
	set, ok := a.files[commit]
	if !ok {
		set = make(map[string]struct{}, 1)
		a.files[commit] = set
	}
	set[path] = struct{}{}
	if a.matcher.IsTestPath(path) {
		a.tests[commit] = true
	}
}

// Summary returns the summary of commit, a commit never added has one file
func (a *Aggregator) Summary(commit string) CommitSummary {
	set, ok := a.files[commit]
	if !ok {
		return CommitSummary{Files: 1}
	}
	return CommitSummary{Files: len(set), ChangedTests: a.tests[commit]}
}

// Commits returns the number of distinct commits seen
func (a *Aggregator) Commits() int {
	return len(a.files)
}
