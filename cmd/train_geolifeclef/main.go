package main

import "context"
import "flag"
import "os"
import "os/signal"
import "syscall"

import "k8s.io/klog/v2"

import "github.com/neurlang/geoclassifier/classification"
import "github.com/neurlang/geoclassifier/config"
import "github.com/neurlang/geoclassifier/datamodule"
import "github.com/neurlang/geoclassifier/device"
import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/trainer"

func main() {
	klog.InitFlags(nil)
	configFile := flag.String("config", "", "run configuration .yaml file")
	resume := flag.String("resume", "", "checkpoint .ckpt file to resume training from")
	pgo := flag.Bool("pgo", false, "write a cpu profile to default.pgo")
	flag.Parse()
	defer klog.Flush()

	cfg, err := config.Load(*configFile, nil)
	if err != nil {
		klog.Fatalf("%v", err)
	}
	if *resume != "" {
		cfg.Trainer.ResumeFrom = *resume
	}
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("%v", err)
	}
	if *pgo {
		defer startProfile()()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	klog.InfoS("device", "info", device.Probe().String())

	dm := datamodule.New(cfg.Data)
	train, err := dm.TrainLoader()
	if err != nil {
		klog.Fatalf("%v", err)
	}
	if cfg.Model.NumClasses == 0 {
		cfg.Model.NumClasses = train.Dataset.Classes()
	}
	threads := cfg.Trainer.Threads
	if threads == 0 {
		threads = device.DefaultWorkers()
	}
	in := layer.Shape{len(datamodule.BioTempVariables), cfg.Data.CropSize, cfg.Data.CropSize}
	sys, err := classification.New(cfg.Model, in, cfg.Trainer.Seed, threads)
	if err != nil {
		klog.Fatalf("%v", err)
	}

	csvLogger, err := trainer.NewCSVLogger(cfg.Logger.Dir)
	if err != nil {
		klog.Fatalf("%v", err)
	}
	callbacks := []trainer.Callback{
		trainer.ModelSummary{MaxDepth: 3},
		trainer.NewModelCheckpoint(cfg.Trainer.CheckpointDir),
	}
	if cfg.Trainer.CheckpointS3URI != "" {
		s3sync, err := trainer.NewS3Sync(cfg.Trainer.CheckpointS3URI)
		if err != nil {
			klog.Fatalf("%v", err)
		}
		callbacks = append(callbacks, s3sync)
	}
	t := trainer.New(cfg.Trainer, sys, in, []trainer.Logger{csvLogger}, callbacks...)
	t.HParams = cfg

	if err := t.Fit(ctx, dm); err != nil {
		klog.Fatalf("fit: %v", err)
	}
	m, err := t.Test(ctx, dm)
	if err != nil {
		klog.Fatalf("test: %v", err)
	}
	for k, v := range m {
		klog.InfoS("test metric", "name", k, "value", v)
	}
}
