package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
)

const (
	defaultProblemSamples = 10
	defaultProgressEvery  = 50000
	maxLineSize           = 16 * 1024 * 1024
)

// RepairStats counts what happened to the lines of a raw file
type RepairStats struct {
	Encoding string
	Lines    int
	Rows     int
	Merged   int
	Padded   int
	Fallback int
	Skipped  int
	Header   bool
}

// ProblemLine is a sample of a line that needed fixing
type ProblemLine struct {
	Number int
	Fields int
	Sample string
}

// RepairConfig tunes the repairer
type RepairConfig struct {
	ProblemSamples int  `yaml:"problem_samples" env:"REPAIR_PROBLEM_SAMPLES"`
	ProgressEvery  int  `yaml:"progress_every" env:"REPAIR_PROGRESS_EVERY"`
	Verbose        bool `yaml:"verbose" env:"REPAIR_VERBOSE"`
}

// PrepareAndValidate fills defaults
func (c *RepairConfig) PrepareAndValidate() error {
	if c.ProblemSamples < 0 || c.ProgressEvery < 0 {
		return errm.New("repair limits must not be negative")
	}
	c.ProblemSamples = lang.Check(c.ProblemSamples, defaultProblemSamples)
	c.ProgressEvery = lang.Check(c.ProgressEvery, defaultProgressEvery)
	return nil
}

// Repairer normalizes raw historical commit files into well-formed rows
type Repairer struct {
	cfg RepairConfig
	log logze.Logger
}

// NewRepairer creates a Repairer
func NewRepairer(cfg RepairConfig) (*Repairer, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, errm.Wrap(err, "failed to prepare and validate config")
	}
	return &Repairer{cfg: cfg, log: logze.With("component", "repairer")}, nil
}

// Repair reads raw lines from r and calls fn for every repaired row.
// Field count problems never abort the run, only fn errors, read errors
// and context cancellation do.
func (p *Repairer) Repair(ctx context.Context, r io.Reader, fn func(model.ChangeRow) error) (RepairStats, []ProblemLine, error) {
	var (
		stats    RepairStats
		problems []ProblemLine
	)

	utf8Reader, enc, err := NewUTF8Reader(r)
	if err != nil {
		return stats, nil, errm.Wrap(err, "failed to detect encoding")
	}
	stats.Encoding = enc
	p.log.Info("reading raw file", "encoding", enc)

	scanner := bufio.NewScanner(utf8Reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	expected := len(model.ChangeColumns)
	for scanner.Scan() {
		stats.Lines++
		if stats.Lines%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, problems, err
			}
		}
		if stats.Lines%p.cfg.ProgressEvery == 0 {
			p.log.Info("repair progress", "lines", stats.Lines, "rows", stats.Rows)
		}

		line := sanitizeLine(scanner.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields, ok := parseLine(line)
		if !ok {
			stats.Fallback++
			fields = strings.Split(line, ",")
		}

		if stats.Rows == 0 && !stats.Header && isHeader(fields) {
			stats.Header = true
			continue
		}

		switch {
		case len(fields) > expected:
			stats.Merged++
			problems = p.sample(problems, stats.Lines, len(fields), line)
		case len(fields) < expected:
			stats.Padded++
			problems = p.sample(problems, stats.Lines, len(fields), line)
		}
		fields = fitFields(fields, expected)

		row := model.NewChangeRow(fields)
		if row.CommitHash == "" {
			stats.Skipped++
			p.log.DebugIf(p.cfg.Verbose, "skipping row without commit hash", "line", stats.Lines)
			continue
		}

		if err := fn(row); err != nil {
			return stats, problems, err
		}
		stats.Rows++
	}
	if err := scanner.Err(); err != nil {
		return stats, problems, errm.Wrap(err, "failed to read raw file")
	}

	return stats, problems, nil
}

// LogStats reports the outcome of a repair pass
func (p *Repairer) LogStats(stats RepairStats, problems []ProblemLine) {
	p.log.Info("repair finished",
		"lines", stats.Lines,
		"rows", stats.Rows,
		"merged", stats.Merged,
		"padded", stats.Padded,
		"fallback", stats.Fallback,
		"skipped", stats.Skipped,
		"encoding", stats.Encoding,
	)
	for _, pl := range problems {
		p.log.Warn("problematic line", "line", pl.Number, "fields", pl.Fields, "sample", pl.Sample)
	}
}

func (p *Repairer) sample(problems []ProblemLine, number, fields int, line string) []ProblemLine {
	if len(problems) >= p.cfg.ProblemSamples {
		return problems
	}
	return append(problems, ProblemLine{Number: number, Fields: fields, Sample: lang.TruncateString(line, 100)})
}

// parseLine parses one physical line as a CSV record
func parseLine(line string) ([]string, bool) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	fields, err := cr.Read()
	if err != nil {
		return nil, false
	}
	return fields, true
}

// fitFields merges overflowing fields into the last column or pads short records
func fitFields(fields []string, expected int) []string {
	switch {
	case len(fields) > expected:
		fixed := make([]string, 0, expected)
		fixed = append(fixed, fields[:expected-1]...)
		return append(fixed, strings.Join(fields[expected-1:], ", "))
	case len(fields) < expected:
		fixed := make([]string, expected)
		copy(fixed, fields)
		return fixed
	}
	return fields
}

func isHeader(fields []string) bool {
	if len(fields) < 3 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(fields[0]), model.ChangeColumns[0]) &&
		strings.EqualFold(strings.TrimSpace(fields[2]), model.ChangeColumns[2])
}

func sanitizeLine(line string) string {
	line = strings.TrimRight(line, "\r")
	line = strings.ReplaceAll(line, "\x00", "")
	return strings.ToValidUTF8(line, "�")
}
