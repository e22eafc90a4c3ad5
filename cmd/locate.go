package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geomind-labs/geomind/internal/cache"
)

var locateNoCache bool

var locateCmd = &cobra.Command{
	Use:   "locate <image>",
	Short: "Geolocate a single image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		imagePath := args[0]

		if err := cfg.Validate("locate"); err != nil {
			return err
		}

		var predCache *cache.Cache
		if !locateNoCache {
			pc, err := openCache(ctx, cfg)
			if err != nil {
				return err
			}
			if pc != nil {
				defer pc.Close()
			}
			predCache = pc
		}

		if predCache != nil {
			image, err := os.ReadFile(imagePath)
			if err != nil {
				return eris.Wrapf(err, "read image %s", imagePath)
			}
			if cached, err := predCache.Get(ctx, cache.Key(image)); err == nil && cached != nil {
				zap.L().Info("serving cached prediction", zap.String("image", imagePath))
				return printJSON(cached)
			}
		}

		orch := buildOrchestrator(cfg)
		sess, err := orch.RunSession(ctx, imagePath)
		if err != nil {
			return eris.Wrap(err, "locate")
		}

		zap.L().Info("locate complete",
			zap.String("image", imagePath),
			zap.Int("iterations", sess.Iteration),
			zap.Float64("confidence", sess.Prediction.Confidence),
		)

		if predCache != nil {
			image, rerr := os.ReadFile(imagePath)
			if rerr == nil {
				if cerr := predCache.Put(ctx, cache.Key(image), sess.Prediction); cerr != nil {
					zap.L().Warn("cache store failed", zap.Error(cerr))
				}
			}
		}

		return printJSON(sess.Prediction)
	},
}

func printJSON(v any) error {
	return printJSONTo(os.Stdout, v)
}

func printJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	locateCmd.Flags().BoolVar(&locateNoCache, "no-cache", false, "bypass the prediction cache")
	rootCmd.AddCommand(locateCmd)
}
