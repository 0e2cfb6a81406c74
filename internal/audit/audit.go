// Package audit records served predictions. Every prediction is
// appended to a CSV sidecar next to the artifacts and, when a database
// path is configured, to a BoltDB bucket that backs the recent-activity
// endpoint. Auditing is best effort and never fails a request.
package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"starling/internal/dataset"
	"starling/internal/eval"
)

const predictionsBucket = "predictions"

// CSVName is the inference log filename, kept next to the artifacts.
const CSVName = "infer_log.csv"

// Entry is one served prediction. Feature values use the null-safe
// float type because missing inputs are NaN and must still serialize.
type Entry struct {
	Timestamp time.Time        `json:"timestamp"`
	Features  []eval.JSONFloat `json:"features"`
	Label     string           `json:"label"`
	TopProb   float64          `json:"top_p"`
	Margin    float64          `json:"margin"`
	Accepted  bool             `json:"accepted"`
}

// Logger appends prediction entries to the CSV sidecar and, when
// enabled, a BoltDB store. Safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	csvPath string
	db      *bbolt.DB
	onFail  func()
}

// New opens the audit logger. dbPath may be empty, which disables the
// BoltDB store and the recent-activity history. onFail is invoked once
// per swallowed write failure; pass nil to ignore.
func New(csvPath, dbPath string, onFail func()) (*Logger, error) {
	l := &Logger{csvPath: csvPath, onFail: onFail}
	if onFail == nil {
		l.onFail = func() {}
	}

	if dbPath != "" {
		db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("open audit db: %w", err)
		}
		err = db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket))
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create predictions bucket: %w", err)
		}
		l.db = db
	}
	return l, nil
}

// Close releases the BoltDB handle if one is open.
func (l *Logger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record appends the entry to every configured sink. Failures are
// logged and counted, never returned: an audit problem must not break
// the prediction path.
func (l *Logger) Record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.appendCSV(e); err != nil {
		log.Warn().Err(err).Msg("audit csv write failed")
		l.onFail()
	}
	if l.db != nil {
		if err := l.putDB(e); err != nil {
			log.Warn().Err(err).Msg("audit db write failed")
			l.onFail()
		}
	}
}

func (l *Logger) appendCSV(e Entry) error {
	_, statErr := os.Stat(l.csvPath)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		header := append(append([]string{}, dataset.Features...), "pred_label", "top_p", "margin", "accepted")
		if err := w.Write(header); err != nil {
			return err
		}
	}

	record := make([]string, 0, len(e.Features)+4)
	for _, v := range e.Features {
		cell := ""
		if !math.IsNaN(float64(v)) {
			cell = strconv.FormatFloat(float64(v), 'g', -1, 64)
		}
		record = append(record, cell)
	}
	record = append(record,
		e.Label,
		strconv.FormatFloat(e.TopProb, 'g', -1, 64),
		strconv.FormatFloat(e.Margin, 'g', -1, 64),
		strconv.FormatBool(e.Accepted),
	)
	if err := w.Write(record); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func (l *Logger) putDB(e Entry) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		// Zero-padded nanosecond keys keep bucket order chronological.
		key := fmt.Sprintf("%020d", e.Timestamp.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// Recent returns up to n entries, newest first. Without a BoltDB store
// it returns an empty slice.
func (l *Logger) Recent(n int) ([]Entry, error) {
	entries := []Entry{}
	if l.db == nil || n <= 0 {
		return entries, nil
	}

	err := l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(entries) < n; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				log.Warn().Err(err).Msg("skipping unreadable audit entry")
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}
