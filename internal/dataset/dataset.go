// Package dataset merges the Kepler KOI and TESS TOI catalogs into a
// single labeled feature table. The two catalogs ship different native
// schemas; the fetch queries alias their columns onto one canonical set
// of 15 numeric transit/stellar features, and this package handles the
// remaining differences: KOI rows already carry a usable label while TOI
// rows carry a working-group disposition code that has to be translated.
//
// Rows whose disposition cannot be mapped onto the three model classes
// are dropped from the merged set. Missing or unparseable feature values
// become NaN, never an error; the tree model routes NaN at split time.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Features is the canonical ordered feature list. Order is load-bearing:
// model input vectors, importance maps and sample rows all align to it.
var Features = []string{
	"period", "duration", "depth", "impact", "prad", "insol", "teq",
	"steff", "slogg", "srad", "smass", "smet", "star_mag", "snr", "ntrans",
}

// Labels is the fixed class set, index order defines the class encoding.
var Labels = []string{"FALSE POSITIVE", "CANDIDATE", "CONFIRMED"}

const (
	MissionKepler = "KEPLER"
	MissionTESS   = "TESS"
)

// dispositionMap translates TESS follow-up working group codes onto the
// model classes. Codes missing from this table drop the row.
var dispositionMap = map[string]string{
	"CP": "CONFIRMED", "KP": "CONFIRMED", "KNOWN PLANET": "CONFIRMED", "CONFIRMED": "CONFIRMED",
	"PC": "CANDIDATE", "APC": "CANDIDATE", "CANDIDATE": "CANDIDATE",
	"FP": "FALSE POSITIVE", "FA": "FALSE POSITIVE", "FALSE POSITIVE": "FALSE POSITIVE",
}

// LabelIndex returns the class index for a label, -1 if unknown.
func LabelIndex(label string) int {
	for i, l := range Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Row is one observation: the 15 features in canonical order (NaN for
// missing), the encoded class and the source mission.
type Row struct {
	Values  []float64
	Class   int
	Mission string
}

// Frame is the harmonized dataset.
type Frame struct {
	Rows    []Row
	Dropped int // rows discarded for unmapped or invalid labels
}

// LoadAndMerge reads both catalogs and returns the merged frame.
// It fails only when a file is unreadable or malformed at the CSV level;
// per-row label problems are a drop, not an error.
func LoadAndMerge(koiPath, toiPath string) (*Frame, error) {
	frame := &Frame{}

	if err := appendCatalog(frame, koiPath, MissionKepler, "label", false); err != nil {
		return nil, fmt.Errorf("load KOI catalog: %w", err)
	}
	if err := appendCatalog(frame, toiPath, MissionTESS, "raw_label", true); err != nil {
		return nil, fmt.Errorf("load TOI catalog: %w", err)
	}

	log.Info().
		Int("rows", len(frame.Rows)).
		Int("dropped", frame.Dropped).
		Msg("catalogs merged")

	return frame, nil
}

func appendCatalog(frame *Frame, path, mission, labelCol string, mapDisposition bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(stripBOM(f))
	r.Comment = '#'
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	labelIdx, ok := col[labelCol]
	if !ok {
		return fmt.Errorf("catalog %s has no %q column", path, labelCol)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		if labelIdx >= len(rec) {
			frame.Dropped++
			continue
		}

		label := strings.ToUpper(strings.TrimSpace(rec[labelIdx]))
		if mapDisposition {
			label = dispositionMap[label]
		}
		class := LabelIndex(label)
		if class < 0 {
			frame.Dropped++
			log.Debug().Str("mission", mission).Str("raw", rec[labelIdx]).Msg("dropping row with unmapped label")
			continue
		}

		values := make([]float64, len(Features))
		for j, feat := range Features {
			values[j] = math.NaN()
			if idx, ok := col[feat]; ok && idx < len(rec) {
				if v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64); err == nil {
					values[j] = v
				}
			}
		}

		frame.Rows = append(frame.Rows, Row{Values: values, Class: class, Mission: mission})
	}

	return nil
}

// stripBOM skips a UTF-8 byte order mark if the file starts with one.
// The archive serves CSV with a BOM depending on the export path.
func stripBOM(r io.Reader) io.Reader {
	br := make([]byte, 3)
	n, _ := io.ReadFull(r, br)
	if n == 3 && br[0] == 0xEF && br[1] == 0xBB && br[2] == 0xBF {
		return r
	}
	return io.MultiReader(strings.NewReader(string(br[:n])), r)
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Matrix returns the n×15 feature matrix in canonical feature order.
func (f *Frame) Matrix() *mat.Dense {
	x := mat.NewDense(len(f.Rows), len(Features), nil)
	for i, row := range f.Rows {
		x.SetRow(i, row.Values)
	}
	return x
}

// LabelVec returns the n×1 class vector the trainer consumes.
func (f *Frame) LabelVec() *mat.Dense {
	y := mat.NewDense(len(f.Rows), 1, nil)
	for i, row := range f.Rows {
		y.Set(i, 0, float64(row.Class))
	}
	return y
}

// Classes returns the class index per row.
func (f *Frame) Classes() []int {
	out := make([]int, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row.Class
	}
	return out
}

// ClassCounts returns the number of rows per class.
func (f *Frame) ClassCounts() []int {
	counts := make([]int, len(Labels))
	for _, row := range f.Rows {
		counts[row.Class]++
	}
	return counts
}

// SampleWeights returns inverse-frequency class weights per row,
// n/(k*count_c), the "balanced" scheme. Imbalance is handled through
// weighting, not resampling.
func (f *Frame) SampleWeights() []float64 {
	counts := f.ClassCounts()
	n := float64(len(f.Rows))
	k := float64(len(Labels))

	weights := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		weights[i] = n / (k * float64(counts[row.Class]))
	}
	return weights
}

// Subset returns a new frame containing the given row indices.
func (f *Frame) Subset(indices []int) *Frame {
	sub := &Frame{Rows: make([]Row, len(indices))}
	for i, idx := range indices {
		sub.Rows[i] = f.Rows[idx]
	}
	return sub
}

// Split partitions the frame into stratified train/test frames.
// Each class is shuffled independently with the given seed so both
// sides see every class at roughly its global frequency.
func (f *Frame) Split(testFrac float64, seed uint64) (train, test *Frame) {
	r := rand.New(rand.NewPCG(seed, seed))

	byClass := make([][]int, len(Labels))
	for i, row := range f.Rows {
		byClass[row.Class] = append(byClass[row.Class], i)
	}

	var trainIdx, testIdx []int
	for _, indices := range byClass {
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		nTest := int(math.Round(testFrac * float64(len(indices))))
		testIdx = append(testIdx, indices[:nTest]...)
		trainIdx = append(trainIdx, indices[nTest:]...)
	}

	return f.Subset(trainIdx), f.Subset(testIdx)
}
