// Package trainer drives supervised training of a classification.System:
// epochs of shuffled batches, per-epoch validation, metric logging,
// checkpoint selection and testing. Optional behaviour is plugged in through
// callbacks (model summary, best checkpoint, S3 upload) and loggers (CSV).
package trainer
