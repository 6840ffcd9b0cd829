// Package main trains a convolutional species classifier on bioclimatic
// temperature patches of the GeoLifeCLEF 2022 dataset, validating every
// epoch, keeping the best checkpoint and finally evaluating the test split.
//
// Usage:
//
//	train_geolifeclef -config config.yaml [-resume checkpoint.ckpt] [-pgo] [klog flags]
//
// Settings can be overridden by GEOCLF_DATASET_PATH, GEOCLF_NUM_WORKERS,
// GEOCLF_MAX_EPOCHS, GEOCLF_CHECKPOINT_DIR and GEOCLF_S3_URI.
package main
