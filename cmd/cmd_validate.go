// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jcodagnone/addrcheck/address"
	"github.com/jcodagnone/addrcheck/cache"
	"github.com/jcodagnone/addrcheck/orchestrator"
	"github.com/jcodagnone/addrcheck/server"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var validateOptions = struct {
	concurrency int
}{}

// validateRecord is one output line of the validate command.
type validateRecord struct {
	OriginalInput string                       `json:"originalInput"`
	Address       *address.StandardizedAddress `json:"address"`
	Status        address.Status               `json:"status,omitempty"`
	Alt           []orchestrator.AltAddress    `json:"alt,omitempty"`
	Error         string                       `json:"error,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate [address...]",
	Short: "Validates addresses given as arguments or one per line on stdin",
	Long: `Validates every address and prints one JSON object per line, in input
order. Unlike the HTTP answer, the output lists the alternative addresses
found when providers disagree.

$ echo "1600 amphitheatre pkwy mountain view ca" | addrcheck validate
{"originalInput":"1600 amphitheatre pkwy mountain view ca","address":{...},"status":"valid"}
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(newViper())
		if err != nil {
			return err
		}

		inputs := args
		if len(inputs) == 0 {
			if isatty.IsTerminal(os.Stdin.Fd()) {
				fmt.Fprintln(os.Stderr, "Enter addresses to validate, one per line…")
			}

			inputs, err = readLines(os.Stdin)
			if err != nil {
				return err
			}
		}

		orch, c, err := buildPipeline(cmd.Context(), cfg, slog.Default(), nil)
		if err != nil {
			return err
		}

		var bar *progressbar.ProgressBar
		if len(inputs) > 1 && isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(len(inputs),
				progressbar.OptionSetDescription("Validating"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		return validateAll(cmd.Context(), frontValidator(orch), c, inputs, validateOptions.concurrency, os.Stdout, bar)
	},
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	return lines, nil
}

// validateAll resolves inputs through c and v and writes the records in
// input order. Repeated addresses are answered by the cache, without
// alternatives.
func validateAll(ctx context.Context, v server.Validator, c *cache.Cache, inputs []string, concurrency int, w io.Writer, bar *progressbar.ProgressBar) error {
	records := make([]validateRecord, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, in := range inputs {
		g.Go(func() error {
			records[i] = validateOne(gctx, v, c, in)

			if bar != nil {
				_ = bar.Add(1)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	failed := 0

	for _, r := range records {
		if r.Error != "" {
			failed++
		}

		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d addresses failed", failed, len(inputs))
	}

	return nil
}

func validateOne(ctx context.Context, v server.Validator, c *cache.Cache, in string) validateRecord {
	var full *orchestrator.Result

	res, err := c.GetOrFetch(ctx, in, func(fetchCtx context.Context) (address.ValidationResult, error) {
		r, err := v.Validate(fetchCtx, in)
		if err != nil {
			return address.ValidationResult{}, err
		}

		full = &r

		return address.ValidationResult{Address: r.Address, Status: r.Status}, nil
	})
	if err != nil {
		return validateRecord{OriginalInput: in, Error: err.Error()}
	}

	rec := validateRecord{OriginalInput: in, Address: res.Address, Status: res.Status}
	if full != nil {
		rec.Alt = full.Alt
	}

	return rec
}

func init() {
	validateCmd.Flags().IntVarP(&validateOptions.concurrency, "concurrency", "j", 4,
		"addresses validated in parallel")
	rootCmd.AddCommand(validateCmd)
}
