package main

import "context"
import "flag"
import "os"
import "os/signal"
import "syscall"

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

import "github.com/neurlang/geoclassifier/classification"
import "github.com/neurlang/geoclassifier/config"
import "github.com/neurlang/geoclassifier/datamodule"
import "github.com/neurlang/geoclassifier/device"
import "github.com/neurlang/geoclassifier/trainer"

func main() {
	klog.InitFlags(nil)
	configFile := flag.String("config", "", "run configuration .yaml file")
	checkpoint := flag.String("checkpoint", "", "trained .ckpt file")
	output := flag.String("output", "submission.csv", "submission .csv file")
	weights := flag.String("weights", "", "zlib weights file replacing the checkpoint weights")
	exportWeights := flag.String("export-weights", "", "write the network weights to this zlib file")
	flag.Parse()
	defer klog.Flush()

	if *checkpoint == "" {
		klog.Fatalf("-checkpoint is required")
	}
	cfg, err := config.Load(*configFile, nil)
	if err != nil {
		klog.Fatalf("%v", err)
	}
	if err := cfg.Data.Validate(); err != nil {
		klog.Fatalf("%v", err)
	}
	ck, err := trainer.ReadCheckpoint(*checkpoint)
	if err != nil {
		klog.Fatalf("%v", err)
	}
	threads := cfg.Trainer.Threads
	if threads == 0 {
		threads = device.DefaultWorkers()
	}
	sys, err := loadSystem(ck, threads, *weights, *exportWeights)
	if err != nil {
		klog.Fatalf("%s: %v", *checkpoint, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := datamodule.New(cfg.Data).PredictLoader()
	if err != nil {
		klog.Fatalf("%v", err)
	}
	t := trainer.New(cfg.Trainer, sys, ck.InShape, nil)
	t.SpeciesIDs = ck.SpeciesIDs

	file, err := os.Create(*output)
	if err != nil {
		klog.Fatalf("%v", err)
	}
	if err := t.Predict(ctx, loader, file); err != nil {
		file.Close()
		klog.Fatalf("predict: %v", err)
	}
	if err := file.Close(); err != nil {
		klog.Fatalf("%v", err)
	}
	klog.InfoS("wrote submission", "path", *output, "observations", loader.Size(), "checkpoint", ck.RunID, ck.Monitor, ck.Score)
}

// loadSystem rebuilds the system of ck, optionally replacing its weights from
// a zlib weights file and exporting the weights in use.
func loadSystem(ck *trainer.Checkpoint, threads int, weights, export string) (*classification.System, error) {
	sys, err := ck.NewSystem(threads)
	if err != nil {
		return nil, err
	}
	if weights != "" {
		if err := sys.Net.ReadZlibWeightsFromFile(weights); err != nil {
			return nil, errors.Wrap(err, weights)
		}
		klog.InfoS("loaded weights", "path", weights)
	}
	if export != "" {
		if err := sys.Net.WriteZlibWeightsToFile(export); err != nil {
			return nil, errors.Wrap(err, export)
		}
		klog.InfoS("exported weights", "path", export, "params", sys.Net.Len())
	}
	return sys, nil
}
