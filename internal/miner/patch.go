package miner

import (
	"strings"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// patchStats counts changed files and lines of a patch and returns every old and new path
func patchStats(patch *object.Patch) (model.CommitStats, []string) {
	var (
		stats model.CommitStats
		paths []string
	)

	for _, fp := range patch.FilePatches() {
		stats.TotalFiles++

		from, to := fp.Files()
		if from != nil {
			paths = append(paths, from.Path())
		}
		if to != nil && (from == nil || to.Path() != from.Path()) {
			paths = append(paths, to.Path())
		}

		for _, chunk := range fp.Chunks() {
			switch chunk.Type() {
			case fdiff.Add:
				stats.Additions += countLines(chunk.Content())
			case fdiff.Delete:
				stats.Deletions += countLines(chunk.Content())
			}
		}
	}

	return stats, paths
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
