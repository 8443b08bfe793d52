package main

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dealzen/deals-cli/internal/extract"
	"github.com/dealzen/deals-cli/internal/fetcher"
	"github.com/dealzen/deals-cli/internal/model"
)

var (
	processInput  string
	processFTPURL string
	processOutput string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract deals from flyer images",
	Long:  "Runs vision extraction over every flyer image in a folder (or FTP drop), validates each batch, records failures in the retry queue, and merges accepted deals into the output file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		source, keyFor, err := buildSource()
		if err != nil {
			return err
		}

		names, err := source.List(ctx)
		if err != nil {
			return eris.Wrap(err, "list flyer images")
		}
		if len(names) == 0 {
			zap.L().Warn("no flyer images found")
			return nil
		}
		zap.L().Info("processing flyers", zap.Int("count", len(names)))

		extractor := extract.New(env.Anthropic, extract.Config{
			Model:      cfg.Anthropic.VisionModel,
			MaxTokens:  cfg.Anthropic.MaxTokens,
			RatePerMin: cfg.Process.RatePerMin,
		})

		var mu sync.Mutex
		var accepted []model.Deal
		var processed, failed int

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Process.Concurrency)

		for _, name := range names {
			g.Go(func() error {
				deals, err := extractFlyer(gctx, source, extractor, name)
				key := keyFor(name)
				if err != nil {
					zap.L().Error("extraction failed", zap.String("image", name), zap.Error(err))
					if qerr := env.Queue.RecordFailure(gctx, key, err.Error(), 0, nil); qerr != nil {
						return qerr
					}
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}

				result, err := env.Gate.IngestBatch(gctx, key, deals)
				if err != nil {
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				processed++
				if result.Indexed {
					accepted = append(accepted, deals...)
				} else {
					failed++
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		output := processOutput
		if output == "" {
			output = cfg.Process.OutputFile
		}
		if err := mergeDeals(output, accepted); err != nil {
			return err
		}

		zap.L().Info("processing complete",
			zap.Int("images", len(names)),
			zap.Int("accepted_batches", processed-failed),
			zap.Int("failed_batches", failed),
			zap.Int("deals_written", len(accepted)),
			zap.String("output", output))
		return nil
	},
}

// buildSource picks the flyer source and a function mapping a listed name
// to the retry-queue key for it.
func buildSource() (fetcher.Source, func(string) string, error) {
	if processFTPURL != "" {
		src, err := fetcher.NewFTPSource(processFTPURL, fetcher.FTPOptions{
			Timeout: time.Duration(cfg.Process.FTPTimeout) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		base := strings.TrimSuffix(processFTPURL, "/")
		return src, func(name string) string { return base + "/" + name }, nil
	}

	dir := processInput
	if dir == "" {
		dir = cfg.Process.InputDir
	}
	src := fetcher.NewDirSource(dir)
	return src, src.Path, nil
}

func extractFlyer(ctx context.Context, source fetcher.Source, extractor *extract.Extractor, name string) ([]model.Deal, error) {
	rc, err := source.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "read image %s", name)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	return extractor.Extract(ctx, data, mimeType, name)
}

// mergeDeals appends newly accepted deals to an existing deals file.
func mergeDeals(path string, deals []model.Deal) error {
	var existing []model.Deal
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			zap.L().Warn("existing deals file unreadable, overwriting", zap.String("path", path), zap.Error(err))
			existing = nil
		}
	}

	merged := append(existing, deals...)
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal deals")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	return nil
}

func init() {
	processCmd.Flags().StringVar(&processInput, "input", "", "flyer image folder (default from config)")
	processCmd.Flags().StringVar(&processFTPURL, "ftp", "", "ftp:// URL of a flyer drop folder (overrides --input)")
	processCmd.Flags().StringVar(&processOutput, "output", "", "merged deals file (default from config)")
	rootCmd.AddCommand(processCmd)
}
