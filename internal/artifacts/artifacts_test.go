package artifacts

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/scigo/sklearn/lightgbm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"starling/internal/dataset"
	"starling/internal/eval"
)

func testModel() *lightgbm.Model {
	trees := make([]lightgbm.Tree, 3)
	for i := range trees {
		trees[i] = lightgbm.Tree{
			TreeIndex:     i,
			NumLeaves:     1,
			NumNodes:      1,
			ShrinkageRate: 1.0,
			Nodes: []lightgbm.Node{
				{
					NodeID:     0,
					ParentID:   -1,
					NodeType:   lightgbm.LeafNode,
					LeafValue:  float64(i),
					LeftChild:  -1,
					RightChild: -1,
				},
			},
		}
	}
	return &lightgbm.Model{
		Objective:    lightgbm.MulticlassSoftmax,
		NumClass:     3,
		NumFeatures:  len(dataset.Features),
		NumIteration: 3,
		LearningRate: 0.1,
		Trees:        trees,
	}
}

func testReport() *eval.Report {
	return &eval.Report{
		Labels:               dataset.Labels,
		NTotal:               10,
		NTrain:               8,
		NTest:                2,
		MacroF1:              0.9,
		RocAucOvr:            eval.JSONFloat(math.NaN()),
		RecommendedThreshold: 0.8,
	}
}

func testHoldout(n int) *dataset.Frame {
	f := &dataset.Frame{}
	for i := 0; i < n; i++ {
		values := make([]float64, len(dataset.Features))
		for j := range values {
			values[j] = float64(i + j)
		}
		values[2] = math.NaN()
		f.Rows = append(f.Rows, dataset.Row{Values: values, Class: i % 3, Mission: dataset.MissionKepler})
	}
	return f
}

func TestWriteAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	require.NoError(t, Write(dir, testModel(), testReport(), testHoldout(8)))

	for _, name := range []string{ModelFile, FeatureListFile, MetricsFile, SampleFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "expected %s", name)
	}

	bundle, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dataset.Features, bundle.Features)
	assert.Equal(t, dataset.Labels, bundle.Labels)
	assert.Equal(t, 0.8, bundle.Metrics.RecommendedThreshold)
	assert.True(t, math.IsNaN(float64(bundle.Metrics.RocAucOvr)))
	assert.False(t, bundle.TrainedAt.IsZero())

	// The reloaded model must produce a valid probability row.
	x := mat.NewDense(1, len(dataset.Features), nil)
	out, err := bundle.Predictor.Predict(x)
	require.NoError(t, err)
	row := mat.DenseCopyOf(out).RawRowView(0)
	sum := 0.0
	for _, p := range row {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestSampleInputsFormat(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	require.NoError(t, Write(dir, testModel(), testReport(), testHoldout(8)))

	data, err := os.ReadFile(filepath.Join(dir, SampleFile))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 6, "header plus five sample rows")
	assert.Equal(t, strings.Join(dataset.Features, ",")+",true_label", lines[0])

	// Row 0: depth is NaN, serialized as an empty cell.
	cells := strings.Split(lines[1], ",")
	require.Len(t, cells, len(dataset.Features)+1)
	assert.Empty(t, cells[2])
	assert.Equal(t, "FALSE POSITIVE", cells[len(cells)-1])
}

func TestSampleInputsFewerRowsThanCap(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	require.NoError(t, Write(dir, testModel(), testReport(), testHoldout(2)))

	data, err := os.ReadFile(filepath.Join(dir, SampleFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
}

func TestLoadMissingArtifacts(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoadPartialArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	require.NoError(t, Write(dir, testModel(), testReport(), testHoldout(8)))
	require.NoError(t, os.Remove(filepath.Join(dir, MetricsFile)))

	_, err := Load(dir)
	assert.Error(t, err)
}
