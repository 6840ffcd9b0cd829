package trainer

import "bytes"
import "context"
import "math"
import "os"
import "path/filepath"
import "reflect"
import "strings"
import "testing"

import "github.com/neurlang/geoclassifier/classification"
import "github.com/neurlang/geoclassifier/datamodule"
import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/tensor"

// signPatches encodes the class (the integer part of the latitude) as the
// sign pattern of the channels.
type signPatches struct{}

func (signPatches) Extract(lat, lon float64) (*tensor.Tensor, error) {
	t := tensor.New(3, 6, 6)
	label := int(lat)
	for c := 0; c < 3; c++ {
		v := float32(-1)
		if c == label {
			v = 1
		}
		for i := range t.Channel(c) {
			t.Channel(c)[i] = v + float32(lon)
		}
	}
	return t, nil
}

func (signPatches) Len() int { return 3 }

type fakeModule struct {
	train, val, test *datamodule.Loader
}

func (f *fakeModule) TrainLoader() (*datamodule.Loader, error)   { return f.train, nil }
func (f *fakeModule) ValLoader() (*datamodule.Loader, error)     { return f.val, nil }
func (f *fakeModule) TestLoader() (*datamodule.Loader, error)    { return f.test, nil }
func (f *fakeModule) PredictLoader() (*datamodule.Loader, error) { return f.test, nil }

func loader(first uint64, n int, labelled, shuffle bool) *datamodule.Loader {
	ds := &datasets.Dataset{Patches: signPatches{}, SpeciesIDs: []int{105, 207, 309}}
	for i := 0; i < n; i++ {
		label := i % 3
		ds.Occurrences = append(ds.Occurrences, datasets.Occurrence{
			ID:        first + uint64(i),
			Latitude:  float64(label) + 0.5,
			Longitude: float64(i%5) * 0.05,
			Label:     label,
			Labelled:  labelled,
		})
	}
	return &datamodule.Loader{Dataset: ds, BatchSize: 8, Shuffle: shuffle, Workers: 2, Seed: 1}
}

func newModule(labelledTest bool) *fakeModule {
	return &fakeModule{
		train: loader(1000, 48, true, true),
		val:   loader(2000, 18, true, false),
		test:  loader(3000, 10, labelledTest, false),
	}
}

func newSystem(t *testing.T) *classification.System {
	cfg := classification.DefaultConfig()
	cfg.NumClasses = 3
	cfg.Filters = 4
	cfg.PoolGrid = 2
	cfg.TopK = 2
	cfg.LR = 0.05
	sys, err := classification.New(cfg, layer.Shape{3, 6, 6}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	return sys
}

type recordingUploader struct {
	keys []string
}

func (r *recordingUploader) Upload(_ context.Context, key, name string) error {
	if _, err := os.Stat(name); err != nil {
		return err
	}
	r.keys = append(r.keys, key)
	return nil
}

func newTrainer(t *testing.T, dir string, up *recordingUploader, summary *bytes.Buffer) *Trainer {
	cfg := DefaultConfig()
	cfg.MaxEpochs = 3
	cfg.LogEveryNSteps = 2
	cfg.CheckpointDir = dir
	cfg.PredictionsFile = filepath.Join(dir, "predictions.csv")
	csvLogger, err := NewCSVLogger(dir)
	if err != nil {
		t.Fatal(err)
	}
	tr := New(cfg, newSystem(t), layer.Shape{3, 6, 6}, []Logger{csvLogger},
		ModelSummary{MaxDepth: 3, Out: summary},
		NewModelCheckpoint(dir),
		&S3Sync{Prefix: "runs/a", Uploader: up},
	)
	tr.HParams = map[string]any{"lr": 0.05}
	return tr
}

func checkpoints(t *testing.T, dir string) []string {
	names, err := filepath.Glob(filepath.Join(dir, "*.ckpt"))
	if err != nil {
		t.Fatal(err)
	}
	return names
}

func TestFitAndTest(t *testing.T) {
	dir := t.TempDir()
	up := new(recordingUploader)
	var summary bytes.Buffer
	tr := newTrainer(t, dir, up, &summary)
	dm := newModule(true)
	if err := tr.Fit(context.Background(), dm); err != nil {
		t.Fatal(err)
	}
	if tr.Step != 3*6 || tr.Epoch != 3 {
		t.Fatalf("step %d epoch %d", tr.Step, tr.Epoch)
	}
	for _, want := range []string{"net.0", "Conv2D", "AvgPool2D", "Full", "trainable params"} {
		if !strings.Contains(summary.String(), want) {
			t.Fatalf("summary lacks %q:\n%s", want, summary.String())
		}
	}

	ckpts := checkpoints(t, dir)
	if len(ckpts) != 1 || ckpts[0] != tr.BestCheckpoint {
		t.Fatalf("checkpoints %v, best %q", ckpts, tr.BestCheckpoint)
	}
	if !strings.HasPrefix(filepath.Base(tr.BestCheckpoint), "checkpoint-epoch=0") ||
		!strings.Contains(tr.BestCheckpoint, "-val_top_k_accuracy=") {
		t.Fatal(tr.BestCheckpoint)
	}
	if len(up.keys) == 0 || up.keys[len(up.keys)-1] != "runs/a/"+filepath.Base(tr.BestCheckpoint) {
		t.Fatalf("uploads %v", up.keys)
	}

	header, rows, err := ReadMetrics(filepath.Join(dir, MetricsFile))
	if err != nil {
		t.Fatal(err)
	}
	if header[0] != "epoch" || header[1] != "step" {
		t.Fatal(header)
	}
	col := -1
	for i, h := range header {
		if h == "val_top_k_accuracy" {
			col = i
		}
	}
	if col < 0 {
		t.Fatal(header)
	}
	epochs := 0
	for _, r := range rows {
		if !math.IsNaN(r[col]) {
			epochs++
		}
	}
	if epochs != 3 {
		t.Fatalf("%d validation rows", epochs)
	}
	if _, err := os.Stat(filepath.Join(dir, HParamsFile)); err != nil {
		t.Fatal(err)
	}

	fitted := tr.System.Net.Weights()
	m, err := tr.Test(context.Background(), dm)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m["test_top_k_accuracy"]; !ok {
		t.Fatal(m)
	}
	if !reflect.DeepEqual(tr.System.Net.Weights(), fitted) {
		t.Fatal("test replaced the fitted weights")
	}
	if _, err := os.Stat(tr.PredictionsFile); !os.IsNotExist(err) {
		t.Fatal("labelled test wrote predictions")
	}
}

func TestTestBestCheckpoint(t *testing.T) {
	dir := t.TempDir()
	tr := newTrainer(t, dir, new(recordingUploader), new(bytes.Buffer))
	tr.TestCkpt = TestCkptBest
	if _, err := tr.Test(context.Background(), newModule(true)); err == nil {
		t.Fatal("best checkpoint test without a checkpoint accepted")
	}
	dm := newModule(true)
	if err := tr.Fit(context.Background(), dm); err != nil {
		t.Fatal(err)
	}
	ck, err := ReadCheckpoint(tr.BestCheckpoint)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Test(context.Background(), dm); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tr.System.Net.Weights(), ck.Weights) {
		t.Fatalf("test did not evaluate the checkpoint of epoch %d", ck.Epoch)
	}
}

func TestTestUnlabelledWritesPredictions(t *testing.T) {
	dir := t.TempDir()
	tr := newTrainer(t, dir, new(recordingUploader), new(bytes.Buffer))
	tr.SpeciesIDs = []int{105, 207, 309}
	m, err := tr.Test(context.Background(), newModule(false))
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 0 {
		t.Fatal(m)
	}
	data, err := os.ReadFile(tr.PredictionsFile)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 11 || lines[0] != "Id,Predicted" || !strings.HasPrefix(lines[1], "3000,") {
		t.Fatal(lines)
	}
	fields := strings.Fields(strings.TrimPrefix(lines[1], "3000,"))
	if len(fields) != 2 {
		t.Fatal(fields)
	}
	for _, f := range fields {
		if f != "105" && f != "207" && f != "309" {
			t.Fatalf("species %q", f)
		}
	}
}

func TestResume(t *testing.T) {
	dir := t.TempDir()
	tr := newTrainer(t, dir, new(recordingUploader), new(bytes.Buffer))
	tr.MaxEpochs = 1
	dm := newModule(true)
	if err := tr.Fit(context.Background(), dm); err != nil {
		t.Fatal(err)
	}
	ck, err := ReadCheckpoint(tr.BestCheckpoint)
	if err != nil {
		t.Fatal(err)
	}
	if ck.Epoch != 0 || ck.Step != 6 || ck.Monitor != "val_top_k_accuracy" || len(ck.TrainFilter) == 0 {
		t.Fatalf("%+v", ck)
	}

	next := newTrainer(t, t.TempDir(), new(recordingUploader), new(bytes.Buffer))
	next.MaxEpochs = 2
	next.ResumeFrom = tr.BestCheckpoint
	if err := next.Fit(context.Background(), dm); err != nil {
		t.Fatal(err)
	}
	if next.Resumed == nil || next.Step != 12 || next.Epoch != 2 {
		t.Fatalf("step %d epoch %d", next.Step, next.Epoch)
	}

	sys, err := ck.NewSystem(1)
	if err != nil {
		t.Fatal(err)
	}
	if sys.Optimizer.Steps() != 6 || sys.NumClasses != 3 {
		t.Fatal(sys.Optimizer.Steps(), sys.NumClasses)
	}
}

func TestStepFollowsOptimizer(t *testing.T) {
	tr := newTrainer(t, t.TempDir(), new(recordingUploader), new(bytes.Buffer))
	tr.MaxEpochs = 1
	dm := newModule(true)
	dm.train = loader(1000, 48, true, false)
	for i := 8; i < 16; i++ {
		dm.train.Dataset.Occurrences[i].Labelled = false
	}
	if err := tr.Fit(context.Background(), dm); err != nil {
		t.Fatal(err)
	}
	if tr.Step != 5 || tr.System.Optimizer.Steps() != 5 {
		t.Fatalf("step %d, optimizer steps %d", tr.Step, tr.System.Optimizer.Steps())
	}
	if !strings.Contains(tr.BestCheckpoint, "-step=5-") {
		t.Fatal(tr.BestCheckpoint)
	}
}

func TestFitCancelled(t *testing.T) {
	tr := newTrainer(t, t.TempDir(), new(recordingUploader), new(bytes.Buffer))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Fit(ctx, newModule(true)); err == nil {
		t.Fatal("cancelled fit returned nil")
	}
	if tr.Step != 0 {
		t.Fatal(tr.Step)
	}
}

func TestSampleSize(t *testing.T) {
	for _, tc := range []struct {
		n, sig, want int
	}{
		{10000, 95, 369},
		{100, 95, 79},
		{10, 95, 9},
	} {
		if got := sampleSize(tc.n, byte(tc.sig)); got != tc.want {
			t.Fatalf("sampleSize(%d, %d) = %d, want %d", tc.n, tc.sig, got, tc.want)
		}
	}
	tr := &Trainer{Config: Config{ValSignificance: 95}}
	val := loader(0, 10000, true, false)
	val.BatchSize = 100
	sample, batches := tr.valSample(val)
	if batches != 4 || sample.Size() != 369 {
		t.Fatalf("val batches %d, samples %d", batches, sample.Size())
	}
	ids := sample.IDs()
	if ids[0] != 0 || ids[len(ids)-1] < 9900 {
		t.Fatalf("sample covers ids %d..%d of 0..9999", ids[0], ids[len(ids)-1])
	}
	for i := 1; i < len(ids); i++ {
		if gap := ids[i] - ids[i-1]; gap < 27 || gap > 28 {
			t.Fatalf("ids %d and %d are %d apart", ids[i-1], ids[i], gap)
		}
	}
	tr.LimitValBatches = 2
	if _, batches := tr.valSample(val); batches != 2 {
		t.Fatalf("val batches %d", batches)
	}
	tr.ValSignificance = 0
	if all, _ := tr.valSample(val); all != val {
		t.Fatal("full validation sampled")
	}
}

func TestFormatCheckpointName(t *testing.T) {
	got, err := FormatCheckpointName(DefaultCheckpointFilename, map[string]float64{
		"epoch":              2,
		"step":               100,
		"val_top_k_accuracy": 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "checkpoint-epoch=02-step=100-val_top_k_accuracy=0.5000" {
		t.Fatal(got)
	}
	if _, err := FormatCheckpointName("{missing}", nil); err == nil {
		t.Fatal("unknown field accepted")
	}
	if _, err := FormatCheckpointName("{epoch", map[string]float64{"epoch": 1}); err == nil {
		t.Fatal("unterminated field accepted")
	}
}

func TestParseS3URI(t *testing.T) {
	bucket, prefix, err := ParseS3URI("s3://models/geo/run1/")
	if err != nil || bucket != "models" || prefix != "geo/run1" {
		t.Fatal(bucket, prefix, err)
	}
	for _, bad := range []string{"models/geo", "https://models/geo", "s3:///geo"} {
		if _, _, err := ParseS3URI(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
	s := &S3Sync{Prefix: "geo"}
	if s.Key("/tmp/x/checkpoint.ckpt") != "geo/checkpoint.ckpt" {
		t.Fatal(s.Key("/tmp/x/checkpoint.ckpt"))
	}
}

func TestCSVLoggerColumns(t *testing.T) {
	dir := t.TempDir()
	l, err := NewCSVLogger(dir)
	if err != nil {
		t.Fatal(err)
	}
	l.LogMetrics(Metrics{"epoch": 0, "train_loss_step": 1.5}, 2)
	l.LogMetrics(Metrics{"epoch": 0, "val_loss": 0.25}, 4)
	if err := l.Save(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, MetricsFile))
	if err != nil {
		t.Fatal(err)
	}
	want := "epoch,step,train_loss_step,val_loss\n0,2,1.5,\n0,4,,0.25\n"
	if string(data) != want {
		t.Fatalf("got\n%s\nwant\n%s", data, want)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.ValSignificance = 100
	if cfg.Validate() == nil {
		t.Fatal("significance 100 accepted")
	}
	cfg = DefaultConfig()
	cfg.TestCkpt = "first"
	if cfg.Validate() == nil {
		t.Fatal("unknown test_ckpt accepted")
	}
	cfg = DefaultConfig()
	cfg.CheckpointS3URI = "bucket/key"
	if cfg.Validate() == nil {
		t.Fatal("bad s3 uri accepted")
	}
}
