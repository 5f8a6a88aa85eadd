// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jcodagnone/addrcheck/address"
	"github.com/jcodagnone/addrcheck/provider"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugNormalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Prints the cache key of each address",
	Long: `Reads one address per line and prints it followed by the key used to
look it up in the result cache.

$ echo "  123   MAIN st " | addrcheck debug normalize
  123   MAIN st 	123 main st
`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(os.Stderr, "Enter addresses to normalize, one per line…")
		}

		return normalizeLines(os.Stdin, os.Stdout)
	},
}

func normalizeLines(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := fmt.Fprintf(w, "%s\t%s\n", line, address.NormalizeKey(line)); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return nil
}

var debugProviderCmd = &cobra.Command{
	Use:   "provider <name> <address>",
	Short: "Calls one provider directly, bypassing cache and orchestration",
	Long: `Calls a single provider and prints its standardized answer. Unlike the
orchestrated paths, provider failures are reported as errors, and a call that
exceeds ADDRESS_SERVICE_TIMEOUT is reported as a service timeout.

Providers: ` + strings.Join(providerNames(), ", "),
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := provider.ParseName(args[0])
		if err != nil {
			return err
		}

		v := newViper()
		v.Set("GEO_SERVICES", string(name))

		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}

		if err := cfg.resolveADCKeys(cmd.Context(), slog.Default()); err != nil {
			return err
		}

		pcfg := cfg.orchestratorConfig(slog.Default(), nil).ProviderConfigs[name]

		p, err := provider.New(name, pcfg)
		if err != nil {
			return err
		}

		return callProvider(cmd.Context(), p, strings.Join(args[1:], " "), os.Stdout)
	},
}

func providerNames() []string {
	names := provider.Names()
	out := make([]string, len(names))

	for i, n := range names {
		out[i] = string(n)
	}

	return out
}

func callProvider(ctx context.Context, p provider.Provider, freeForm string, w io.Writer) error {
	res, err := p.Validate(ctx, freeForm)
	if err != nil {
		if errors.Is(err, provider.ErrTimeout) {
			return fmt.Errorf("%s: %w", p.Name(), provider.ErrTimeout)
		}

		return fmt.Errorf("calling %s: %w", p.Name(), err)
	}

	out := struct {
		Provider provider.Name                `json:"service"`
		Address  *address.StandardizedAddress `json:"address"`
		Status   address.Status               `json:"status"`
		Raw      json.RawMessage              `json:"raw,omitempty"`
	}{p.Name(), res.Address, res.Status, res.Raw}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	return nil
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugNormalizeCmd)
	debugCmd.AddCommand(debugProviderCmd)
}
