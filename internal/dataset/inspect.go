package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
)

// DefaultLabelColumns are tried in order when no label column is configured
var DefaultLabelColumns = []string{"build_label", "pipeline_failed"}

// DefaultNumericColumns are summarized when present in the header
var DefaultNumericColumns = []string{
	"LINES_ADDED", "LINES_REMOVED", "lines_added", "lines_deleted", "files_changed",
	"remote_files_changed", "remote_additions", "remote_deletions",
}

var missingValues = map[string]struct{}{"": {}, "nan": {}, "null": {}, "none": {}, "na": {}, "n/a": {}}

// InspectConfig configures the inspector
type InspectConfig struct {
	LabelColumn    string   `yaml:"label_column" env:"INSPECT_LABEL_COLUMN"`
	NumericColumns []string `yaml:"numeric_columns" env:"INSPECT_NUMERIC_COLUMNS" env-separator:","`
}

// NumericSummary describes one numeric column
type NumericSummary struct {
	Count  int
	Mean   float64
	Median float64
	Max    float64
}

// Report is the result of inspecting a dataset
type Report struct {
	Path        string
	Header      []string
	Rows        int
	Malformed   int
	Missing     map[string]int
	LabelColumn string
	Labels      map[string]int
	Numeric     map[string]NumericSummary
}

// MissingRate returns the share of rows where column is empty or a null marker
func (r Report) MissingRate(column string) float64 {
	if r.Rows == 0 {
		return 0
	}
	return float64(r.Missing[column]) / float64(r.Rows)
}

// Inspector reports summary statistics of any CSV dataset
type Inspector struct {
	cfg InspectConfig
	log logze.Logger
}

// NewInspector creates an Inspector
func NewInspector(cfg InspectConfig) *Inspector {
	if len(cfg.NumericColumns) == 0 {
		cfg.NumericColumns = DefaultNumericColumns
	}
	return &Inspector{cfg: cfg, log: logze.With("component", "inspector")}
}

// InspectFile inspects the CSV file at path
func (i *Inspector) InspectFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, errm.Wrap(err, "failed to open")
	}
	defer f.Close()

	report, err := i.Inspect(ctx, f)
	report.Path = path
	return report, err
}

// Inspect reads a CSV with a header from r.
// Records with a wrong number of fields are counted as malformed and skipped.
func (i *Inspector) Inspect(ctx context.Context, r io.Reader) (Report, error) {
	report := Report{
		Missing: make(map[string]int),
		Labels:  make(map[string]int),
		Numeric: make(map[string]NumericSummary),
	}

	utf8Reader, _, err := NewUTF8Reader(r)
	if err != nil {
		return report, errm.Wrap(err, "failed to detect encoding")
	}
	cr := csv.NewReader(utf8Reader)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return report, nil
		}
		return report, errm.Wrap(err, "failed to read header")
	}
	report.Header = append([]string(nil), header...)

	var labelIdx int
	report.LabelColumn, labelIdx = i.findLabelColumn(report.Header)

	numericIdx := make(map[int]string)
	values := make(map[string]stats.Float64Data)
	for _, name := range i.cfg.NumericColumns {
		if idx := indexOf(report.Header, name); idx >= 0 {
			numericIdx[idx] = name
		}
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				report.Malformed++
				continue
			}
			return report, errm.Wrap(err, "failed to read record")
		}
		if len(record) != len(report.Header) {
			report.Malformed++
			continue
		}
		report.Rows++
		if report.Rows%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}

		for idx, value := range record {
			if isMissing(value) {
				report.Missing[report.Header[idx]]++
			}
		}
		if labelIdx >= 0 {
			label := strings.TrimSpace(record[labelIdx])
			if isMissing(label) {
				label = "<missing>"
			}
			report.Labels[label]++
		}
		for idx, name := range numericIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err == nil {
				values[name] = append(values[name], v)
			}
		}
	}

	for name, data := range values {
		summary := NumericSummary{Count: data.Len()}
		summary.Mean, _ = stats.Mean(data)
		summary.Median, _ = stats.Median(data)
		summary.Max, _ = stats.Max(data)
		report.Numeric[name] = summary
	}

	i.log.Info("dataset inspected", "rows", report.Rows, "columns", len(report.Header), "malformed", report.Malformed)
	return report, nil
}

func (i *Inspector) findLabelColumn(header []string) (string, int) {
	if i.cfg.LabelColumn != "" {
		idx := indexOf(header, i.cfg.LabelColumn)
		if idx < 0 {
			i.log.Warn("label column not found", "column", i.cfg.LabelColumn)
		}
		return i.cfg.LabelColumn, idx
	}
	for _, name := range DefaultLabelColumns {
		if idx := indexOf(header, name); idx >= 0 {
			return name, idx
		}
	}
	return "", -1
}

// Render writes the report as tables
func (r Report) Render(w io.Writer) {
	fmt.Fprintf(w, "Dataset: %s\n", r.Path)
	fmt.Fprintf(w, "Rows: %s, columns: %d, malformed records: %s\n\n",
		humanize.Comma(int64(r.Rows)), len(r.Header), humanize.Comma(int64(r.Malformed)))

	missing := tablewriter.NewWriter(w)
	missing.SetHeader([]string{"Column", "Missing", "Rate"})
	for _, col := range r.Header {
		missing.Append([]string{
			col,
			humanize.Comma(int64(r.Missing[col])),
			fmt.Sprintf("%.2f%%", r.MissingRate(col)*100),
		})
	}
	missing.Render()

	if r.LabelColumn != "" && len(r.Labels) > 0 {
		fmt.Fprintf(w, "\nLabel distribution (%s):\n", r.LabelColumn)
		labels := make([]string, 0, len(r.Labels))
		for l := range r.Labels {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(a, b int) bool {
			if r.Labels[labels[a]] != r.Labels[labels[b]] {
				return r.Labels[labels[a]] > r.Labels[labels[b]]
			}
			return labels[a] < labels[b]
		})

		dist := tablewriter.NewWriter(w)
		dist.SetHeader([]string{"Label", "Count", "Share"})
		for _, l := range labels {
			dist.Append([]string{
				l,
				humanize.Comma(int64(r.Labels[l])),
				fmt.Sprintf("%.2f%%", float64(r.Labels[l])/float64(r.Rows)*100),
			})
		}
		dist.Render()
	}

	if len(r.Numeric) > 0 {
		fmt.Fprintln(w, "\nNumeric columns:")
		num := tablewriter.NewWriter(w)
		num.SetHeader([]string{"Column", "Count", "Mean", "Median", "Max"})
		for _, col := range r.Header {
			s, ok := r.Numeric[col]
			if !ok {
				continue
			}
			num.Append([]string{
				col,
				humanize.Comma(int64(s.Count)),
				humanize.FormatFloat("#,###.##", s.Mean),
				humanize.FormatFloat("#,###.##", s.Median),
				humanize.FormatFloat("#,###.##", s.Max),
			})
		}
		num.Render()
	}
}

func isMissing(v string) bool {
	_, ok := missingValues[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}
