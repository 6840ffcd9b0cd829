// Package datamodule wires the GeoLifeCLEF datasets, the bioclimatic patch
// extractor and the transform pipelines into train, validation, test and
// predict loaders.
package datamodule

import "path/filepath"
import "sync"

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/datasets/geolifeclef"
import "github.com/neurlang/geoclassifier/device"
import "github.com/neurlang/geoclassifier/raster"
import "github.com/neurlang/geoclassifier/transform"

// Variable is a raster queried for every patch, with the value substituted
// for missing data.
type Variable struct {
	Name string
	Fill float32
}

// BioTempVariables are the three temperature related bioclimatic rasters
// matching transform.BioTempMean and transform.BioTempScale.
var BioTempVariables = []Variable{
	{Name: "bio_1", Fill: -12.0},
	{Name: "bio_2", Fill: 1.0},
	{Name: "bio_7", Fill: 1.0},
}

// Config is the data section of the run configuration.
type Config struct {
	DatasetPath        string  `yaml:"dataset_path" env:"DATASET_PATH"`
	MiniGeoLifeCLEF    bool    `yaml:"minigeolifeclef" env:"MINIGEOLIFECLEF"`
	TrainBatchSize     int     `yaml:"train_batch_size" env:"TRAIN_BATCH_SIZE"`
	InferenceBatchSize int     `yaml:"inference_batch_size" env:"INFERENCE_BATCH_SIZE"`
	NumWorkers         int     `yaml:"num_workers" env:"NUM_WORKERS"`
	PatchSize          int     `yaml:"patch_size"`
	ResizeSize         int     `yaml:"resize_size"`
	CropSize           int     `yaml:"crop_size"`
	RotationDegrees    float64 `yaml:"rotation_degrees"`
	RotationFill       float32 `yaml:"rotation_fill"`
	ValFraction        float64 `yaml:"val_fraction"`
	Seed               int64   `yaml:"seed" env:"DATA_SEED"`
}

// DefaultConfig returns the settings of the reference experiment.
func DefaultConfig() Config {
	return Config{
		TrainBatchSize:     32,
		InferenceBatchSize: 256,
		NumWorkers:         8,
		PatchSize:          20,
		ResizeSize:         256,
		CropSize:           224,
		RotationDegrees:    45,
		RotationFill:       255,
		ValFraction:        geolifeclef.DefaultValFraction,
	}
}

// Validate checks sizes and paths.
func (c Config) Validate() error {
	switch {
	case c.DatasetPath == "":
		return errors.New("data: dataset_path is empty")
	case c.TrainBatchSize <= 0 || c.InferenceBatchSize <= 0:
		return errors.Errorf("data: batch sizes must be positive, got %d and %d", c.TrainBatchSize, c.InferenceBatchSize)
	case c.NumWorkers < 0:
		return errors.Errorf("data: num_workers %d is negative", c.NumWorkers)
	case c.PatchSize <= 0 || c.ResizeSize <= 0 || c.CropSize <= 0:
		return errors.Errorf("data: patch %d, resize %d and crop %d sizes must be positive", c.PatchSize, c.ResizeSize, c.CropSize)
	case c.CropSize > c.ResizeSize:
		return errors.Errorf("data: crop %d larger than resize %d", c.CropSize, c.ResizeSize)
	}
	return nil
}

// DataModule produces the loaders of one training run.
type DataModule struct {
	Config

	newFull, newMini geolifeclef.Constructor

	mut      sync.Mutex
	patches  datasets.Patcher
	datasets map[datasets.Split]*datasets.Dataset
}

// New creates a data module. Rasters and observations are read lazily.
func New(cfg Config) *DataModule {
	return &DataModule{
		Config:   cfg,
		newFull:  geolifeclef.New,
		newMini:  geolifeclef.NewMini,
		datasets: make(map[datasets.Split]*datasets.Dataset),
	}
}

// Workers is the effective loader worker count.
func (d *DataModule) Workers() int {
	if d.NumWorkers > 0 {
		return d.NumWorkers
	}
	return device.DefaultWorkers()
}

// TrainTransform standardises, resizes and randomly augments a patch.
func (d *DataModule) TrainTransform() transform.Transform {
	return transform.Compose{
		transform.NewBioTemp(d.ResizeSize),
		transform.RandomRotation{Degrees: d.RotationDegrees, Fill: d.RotationFill},
		transform.RandomCrop{Size: d.CropSize},
		transform.RandomHorizontalFlip{P: 0.5},
		transform.RandomVerticalFlip{P: 0.5},
		transform.Normalize{Mean: transform.ImageNetMean, Std: transform.ImageNetStd},
	}
}

// TestTransform standardises, resizes and centre crops a patch.
func (d *DataModule) TestTransform() transform.Transform {
	return transform.Compose{
		transform.NewBioTemp(d.ResizeSize),
		transform.CenterCrop{Size: d.CropSize},
		transform.Normalize{Mean: transform.ImageNetMean, Std: transform.ImageNetStd},
	}
}

// Variant names the dataset selected by the mini flag and returns its constructor.
func (d *DataModule) Variant() (string, geolifeclef.Constructor) {
	if d.MiniGeoLifeCLEF {
		return "MiniGeoLifeCLEF2022", d.newMini
	}
	return "GeoLifeCLEF2022", d.newFull
}

// Patches returns the extractor over <dataset_path>/rasters, loading the
// BioTempVariables on first use.
func (d *DataModule) Patches() (datasets.Patcher, error) {
	d.mut.Lock()
	defer d.mut.Unlock()
	if d.patches != nil {
		return d.patches, nil
	}
	root := filepath.Join(d.DatasetPath, "rasters")
	p, err := raster.NewPatchExtractor(root, d.PatchSize)
	if err != nil {
		return nil, err
	}
	for _, v := range BioTempVariables {
		if err := p.Append(v.Name, v.Fill); err != nil {
			return nil, errors.Wrap(err, "data")
		}
		klog.V(1).InfoS("loaded raster", "name", v.Name, "root", root)
	}
	d.patches = p
	return p, nil
}

// GetDataset constructs the dataset of split with transform tr.
func (d *DataModule) GetDataset(split datasets.Split, tr transform.Transform) (*datasets.Dataset, error) {
	patches, err := d.Patches()
	if err != nil {
		return nil, err
	}
	name, construct := d.Variant()
	ds, err := construct(d.DatasetPath, split, geolifeclef.Options{
		Patches:     patches,
		Transform:   tr,
		ValFraction: d.ValFraction,
		Salt:        uint32(d.Seed),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "data: %s %s", name, split)
	}
	klog.InfoS("dataset ready", "variant", name, "split", split, "occurrences", ds.Len(), "classes", ds.Classes())
	return ds, nil
}

func (d *DataModule) dataset(split datasets.Split, tr transform.Transform) (*datasets.Dataset, error) {
	d.mut.Lock()
	ds, ok := d.datasets[split]
	d.mut.Unlock()
	if ok {
		return ds, nil
	}
	ds, err := d.GetDataset(split, tr)
	if err != nil {
		return nil, err
	}
	d.mut.Lock()
	d.datasets[split] = ds
	d.mut.Unlock()
	return ds, nil
}

func (d *DataModule) loader(split datasets.Split, tr transform.Transform, batch int, shuffle bool) (*Loader, error) {
	ds, err := d.dataset(split, tr)
	if err != nil {
		return nil, err
	}
	return &Loader{
		Dataset:   ds,
		BatchSize: batch,
		Shuffle:   shuffle,
		Workers:   d.Workers(),
		Seed:      d.Seed,
	}, nil
}

// TrainLoader shuffles the training split and augments every sample.
func (d *DataModule) TrainLoader() (*Loader, error) {
	return d.loader(datasets.Train, d.TrainTransform(), d.TrainBatchSize, true)
}

// ValLoader iterates the validation split in order.
func (d *DataModule) ValLoader() (*Loader, error) {
	return d.loader(datasets.Val, d.TestTransform(), d.InferenceBatchSize, false)
}

// TestLoader iterates the held-out test split in order.
func (d *DataModule) TestLoader() (*Loader, error) {
	return d.loader(datasets.Test, d.TestTransform(), d.InferenceBatchSize, false)
}

// PredictLoader iterates the test split for writing predictions.
func (d *DataModule) PredictLoader() (*Loader, error) {
	return d.TestLoader()
}
