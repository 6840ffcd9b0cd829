package trainer

import "github.com/pkg/errors"

// Config is the trainer section of the run configuration.
type Config struct {
	MaxEpochs         int    `yaml:"max_epochs" env:"MAX_EPOCHS"`
	LimitTrainBatches int    `yaml:"limit_train_batches"`
	LimitValBatches   int    `yaml:"limit_val_batches"`
	ValSignificance   int    `yaml:"val_significance"`
	LogEveryNSteps    int    `yaml:"log_every_n_steps"`
	Seed              int64  `yaml:"seed" env:"SEED"`
	Threads           int    `yaml:"threads" env:"THREADS"`
	CheckpointDir     string `yaml:"checkpoint_dir" env:"CHECKPOINT_DIR"`
	CheckpointS3URI   string `yaml:"checkpoint_s3_uri" env:"S3_URI"`
	ResumeFrom        string `yaml:"resume_from"`
	PredictionsFile   string `yaml:"predictions_file"`

	// TestCkpt selects the weights Test evaluates: TestCkptLast (the
	// in-memory weights) or TestCkptBest (the best checkpoint of Fit).
	TestCkpt string `yaml:"test_ckpt"`
}

// Values of Config.TestCkpt.
const (
	TestCkptLast = "last"
	TestCkptBest = "best"
)

// DefaultConfig trains for 10 epochs, logging every 50 steps.
func DefaultConfig() Config {
	return Config{
		MaxEpochs:       10,
		LogEveryNSteps:  50,
		CheckpointDir:   ".",
		PredictionsFile: "predictions.csv",
		TestCkpt:        TestCkptLast,
	}
}

// Validate checks limits and the S3 destination.
func (c Config) Validate() error {
	switch {
	case c.MaxEpochs <= 0:
		return errors.Errorf("trainer: max_epochs %d must be positive", c.MaxEpochs)
	case c.LimitTrainBatches < 0 || c.LimitValBatches < 0:
		return errors.New("trainer: batch limits must not be negative")
	case c.ValSignificance < 0 || c.ValSignificance > 99:
		return errors.Errorf("trainer: val_significance %d outside 0..99", c.ValSignificance)
	case c.Threads < 0 || c.LogEveryNSteps < 0:
		return errors.New("trainer: threads and log_every_n_steps must not be negative")
	case c.TestCkpt != "" && c.TestCkpt != TestCkptLast && c.TestCkpt != TestCkptBest:
		return errors.Errorf("trainer: test_ckpt %q is neither %q nor %q", c.TestCkpt, TestCkptLast, TestCkptBest)
	}
	if c.CheckpointS3URI != "" {
		if _, _, err := ParseS3URI(c.CheckpointS3URI); err != nil {
			return err
		}
	}
	return nil
}

// LoggerConfig is the logger section of the run configuration.
type LoggerConfig struct {
	Dir string `yaml:"dir"`
}
