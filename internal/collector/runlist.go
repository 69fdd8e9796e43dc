package collector

import (
	"os"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/dataset"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReadRunList reads a run-list JSON file, a missing file is an empty list
func ReadRunList(path string) ([]model.WorkflowRun, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errm.Wrap(err, "failed to read run list")
	}

	var runs []model.WorkflowRun
	if err := json.Unmarshal(raw, &runs); err != nil {
		return nil, errm.Wrap(err, "failed to decode run list")
	}
	return runs, nil
}

// WriteRunList replaces the run-list JSON file at path atomically
func WriteRunList(path string, runs []model.WorkflowRun) error {
	if runs == nil {
		runs = []model.WorkflowRun{}
	}

	out, err := dataset.CreateAtomic(path)
	if err != nil {
		return err
	}
	defer out.Abort()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(runs); err != nil {
		return errm.Wrap(err, "failed to encode run list")
	}

	return out.Commit()
}

// runSet is a run list with de-duplication by id. An existing run wins unless
// it was still unfinished and the incoming one has a decisive conclusion.
type runSet struct {
	runs  []model.WorkflowRun
	index map[int64]int
}

func newRunSet(existing []model.WorkflowRun) *runSet {
	s := &runSet{
		runs:  make([]model.WorkflowRun, 0, len(existing)),
		index: make(map[int64]int, len(existing)),
	}
	s.add(existing)
	return s
}

// add merges runs into the set and returns how many were added and how many replaced
func (s *runSet) add(runs []model.WorkflowRun) (added, updated int) {
	for _, r := range runs {
		i, ok := s.index[r.ID]
		if !ok {
			s.index[r.ID] = len(s.runs)
			s.runs = append(s.runs, r)
			added++
			continue
		}
		if !s.runs[i].Conclusion.IsDecisive() && r.Conclusion.IsDecisive() {
			s.runs[i] = r
			updated++
		}
	}
	return added, updated
}
