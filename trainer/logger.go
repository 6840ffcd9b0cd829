package trainer

import "encoding/csv"
import "math"
import "os"
import "path/filepath"
import "sort"
import "strconv"
import "sync"

import "github.com/pkg/errors"
import "gopkg.in/yaml.v3"

// Logger receives hyperparameters and metrics.
type Logger interface {
	LogHyperparams(hparams any) error
	LogMetrics(m Metrics, step int)
	Save() error
}

// MetricsFile and HParamsFile are the names written by CSVLogger.
const (
	MetricsFile = "metrics.csv"
	HParamsFile = "hparams.yaml"
)

// CSVLogger keeps every logged row in memory and rewrites metrics.csv on
// Save, so columns added later in the run get a header entry. Cells of
// metrics absent from a row stay empty.
type CSVLogger struct {
	Dir string

	mut  sync.Mutex
	rows []map[string]float64
	keys map[string]struct{}
}

// NewCSVLogger writes into dir, creating it if needed.
func NewCSVLogger(dir string) (*CSVLogger, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "csv logger")
	}
	return &CSVLogger{Dir: dir, keys: make(map[string]struct{})}, nil
}

// LogHyperparams writes hparams to hparams.yaml.
func (l *CSVLogger) LogHyperparams(hparams any) error {
	if hparams == nil {
		return nil
	}
	data, err := yaml.Marshal(hparams)
	if err != nil {
		return errors.Wrap(err, "csv logger")
	}
	return errors.Wrap(os.WriteFile(filepath.Join(l.Dir, HParamsFile), data, 0o644), "csv logger")
}

// LogMetrics records one row at step.
func (l *CSVLogger) LogMetrics(m Metrics, step int) {
	row := make(map[string]float64, len(m)+1)
	for k, v := range m {
		row[k] = v
	}
	row["step"] = float64(step)
	l.mut.Lock()
	for k := range row {
		l.keys[k] = struct{}{}
	}
	l.rows = append(l.rows, row)
	l.mut.Unlock()
}

// columns puts epoch and step first, the rest sorted.
func (l *CSVLogger) columns() []string {
	var cols []string
	for k := range l.keys {
		if k != "epoch" && k != "step" {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	head := []string{}
	if _, ok := l.keys["epoch"]; ok {
		head = append(head, "epoch")
	}
	head = append(head, "step")
	return append(head, cols...)
}

func formatMetric(k string, v float64) string {
	if (k == "epoch" || k == "step") && v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Save rewrites metrics.csv.
func (l *CSVLogger) Save() error {
	l.mut.Lock()
	defer l.mut.Unlock()
	if len(l.rows) == 0 {
		return nil
	}
	name := filepath.Join(l.Dir, MetricsFile)
	file, err := os.Create(name)
	if err != nil {
		return errors.Wrap(err, "csv logger")
	}
	w := csv.NewWriter(file)
	cols := l.columns()
	w.Write(cols)
	for _, row := range l.rows {
		rec := make([]string, len(cols))
		for i, c := range cols {
			if v, ok := row[c]; ok {
				rec[i] = formatMetric(c, v)
			}
		}
		w.Write(rec)
	}
	w.Flush()
	err = w.Error()
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return errors.Wrap(err, "csv logger")
}

// ReadMetrics parses a metrics.csv file into its header and rows. Empty
// cells are NaN.
func ReadMetrics(name string) ([]string, [][]float64, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, nil, errors.Wrap(err, "metrics")
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "metrics %s", name)
	}
	if len(records) == 0 {
		return nil, nil, errors.Errorf("metrics %s: empty", name)
	}
	rows := make([][]float64, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := make([]float64, len(rec))
		for j, cell := range rec {
			if cell == "" {
				row[j] = math.NaN()
				continue
			}
			if row[j], err = strconv.ParseFloat(cell, 64); err != nil {
				return nil, nil, errors.Wrapf(err, "metrics %s line %d", name, i+2)
			}
		}
		rows = append(rows, row)
	}
	return records[0], rows, nil
}
