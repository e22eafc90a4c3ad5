package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geomind-labs/geomind/internal/model"
)

var (
	batchLimit  int
	batchOutput string
)

// imageExtensions are the files a batch directory scan picks up.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Geolocate every image in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		images, err := collectImages(args[0])
		if err != nil {
			return err
		}
		if batchLimit > 0 && len(images) > batchLimit {
			images = images[:batchLimit]
		}
		if len(images) == 0 {
			zap.L().Info("no images found", zap.String("dir", args[0]))
			return nil
		}

		orch := buildOrchestrator(cfg)
		results, err := processBatch(ctx, images, cfg.Batch.MaxConcurrentImages, orch.RunSession)
		if err != nil {
			return err
		}

		if batchOutput != "" {
			if err := writeResults(batchOutput, results); err != nil {
				return err
			}
		}
		return printJSON(results)
	},
}

// batchResult is one image's outcome in the batch report.
type batchResult struct {
	Image      string            `json:"image"`
	Prediction *model.Prediction `json:"prediction,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// collectImages lists image files directly under dir, sorted by name.
func collectImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read dir %s", dir)
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}

// locateFunc is the callback signature for geolocating one image file.
type locateFunc func(ctx context.Context, imagePath string) (*model.Session, error)

// processBatch runs the pipeline over the images concurrently. A failed
// image is reported and skipped; only context cancellation aborts the
// batch.
func processBatch(ctx context.Context, images []string, concurrency int, locate locateFunc) ([]batchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	zap.L().Info("processing batch",
		zap.Int("images", len(images)),
		zap.Int("concurrency", concurrency),
	)

	var mu sync.Mutex
	results := make([]batchResult, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, imagePath := range images {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			sess, err := locate(gctx, imagePath)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Warn("image failed, continuing batch",
					zap.String("image", imagePath),
					zap.Error(err),
				)
				results[i] = batchResult{Image: imagePath, Error: err.Error()}
				return nil
			}
			results[i] = batchResult{Image: imagePath, Prediction: sess.Prediction}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch interrupted")
	}

	succeeded := 0
	for _, r := range results {
		if r.Error == "" {
			succeeded++
		}
	}
	zap.L().Info("batch complete",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(results)-succeeded),
	)
	return results, nil
}

func writeResults(path string, results []batchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	return printJSONTo(f, results)
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of images to process (0 = all)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write results JSON to file")
	rootCmd.AddCommand(batchCmd)
}
