package trainer

import (
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// MetricsRow is one line of metrics.csv
type MetricsRow struct {
	Epoch        int     `csv:"epoch"`
	Step         int     `csv:"step"`
	TrainLoss    float64 `csv:"train_loss"`
	ValLoss      float64 `csv:"val_loss"`
	ValAccuracy  float64 `csv:"val_acc"`
	ValF1        float64 `csv:"val_f1"`
	ValPrecision float64 `csv:"val_precision"`
	ValRecall    float64 `csv:"val_recall"`
	Improved     bool    `csv:"improved"`
	Seconds      float64 `csv:"seconds"`
}

// MetricsLog mirrors the per-epoch rows into a CSV file
type MetricsLog struct {
	path string
	rows []*MetricsRow
}

// OpenMetricsLog reads an existing log, keeping only rows up to maxEpoch
// (all rows when maxEpoch < 0). A missing file starts an empty log.
func OpenMetricsLog(path string, maxEpoch int) (*MetricsLog, error) {
	l := &MetricsLog{path: path}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open metrics log")
	}
	defer f.Close()

	var rows []*MetricsRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	for _, r := range rows {
		if maxEpoch < 0 || r.Epoch <= maxEpoch {
			l.rows = append(l.rows, r)
		}
	}
	return l, nil
}

// Rows returns the recorded rows
func (l *MetricsLog) Rows() []*MetricsRow {
	return l.rows
}

// Append records a row and rewrites the file. The new contents replace the
// old file only once fully written.
func (l *MetricsLog) Append(row MetricsRow) error {
	l.rows = append(l.rows, &row)

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to write metrics log")
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.MarshalFile(&l.rows, tmp); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", l.path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to write %s", l.path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), l.path), "failed to move %s into place", l.path)
}
