package labeler

import (
	"strconv"
	"strings"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/dataset"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/features"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/maxbolgarin/errm"
)

const fileSeparator = ";"

// commitGroup is every enhanced row of one commit
type commitGroup struct {
	first   model.EnhancedRow
	files   []string
	seen    map[string]struct{}
	added   int
	removed int
}

func (g *commitGroup) hash() string {
	return g.first.CommitHash
}

func (g *commitGroup) add(r model.EnhancedRow) {
	g.added += r.Added()
	g.removed += r.Removed()

	if r.File == "" {
		return
	}
	if _, ok := g.seen[r.File]; ok {
		return
	}
	g.seen[r.File] = struct{}{}
	g.files = append(g.files, r.File)
}

// row builds the commit-level row, features are recomputed from all rows of the commit
func (g *commitGroup) row(m *features.Matcher, res model.LabelResult) model.LabeledRow {
	base := g.first
	base.File = strings.Join(g.files, fileSeparator)
	base.LinesAdded = strconv.Itoa(g.added)
	base.LinesRemoved = strconv.Itoa(g.removed)
	base.HasFixKeyword = model.FlagOf(m.HasFixKeyword(base.Note))
	base.FilesChanged = len(g.files)
	base.ChangedTests = model.FlagOf(m.AnyTestPath(g.files...))

	return model.LabeledRow{
		EnhancedRow:        base,
		BuildLabel:         res.Label,
		RemoteFilesChanged: res.Details.FilesChanged,
		RemoteAdditions:    res.Details.Additions,
		RemoteDeletions:    res.Details.Deletions,
		RemoteHasCI:        model.FlagOf(res.HasCI),
		RemoteHasPR:        model.FlagOf(res.HasPR),
		WorkflowNames:      strings.Join(res.WorkflowNames, fileSeparator),
	}
}

// collapse groups the enhanced table by commit hash in first-seen order.
// With limit > 0 only the first limit commits are kept, their later rows are still merged.
func collapse(path string, limit int) (groups []*commitGroup, rows int, err error) {
	index := make(map[string]*commitGroup)

	err = dataset.StreamRows(path, func(r model.EnhancedRow) error {
		rows++
		r.CommitHash = strings.TrimSpace(r.CommitHash)
		if r.CommitHash == "" {
			return nil
		}

		g, ok := index[r.CommitHash]
		if !ok {
			if limit > 0 && len(groups) >= limit {
				return nil
			}
			g = &commitGroup{first: r, seen: make(map[string]struct{}, 1)}
			index[r.CommitHash] = g
			groups = append(groups, g)
		}
		g.add(r)

		return nil
	})
	if err != nil {
		return nil, rows, errm.Wrap(err, "failed to read enhanced rows")
	}

	return groups, rows, nil
}
