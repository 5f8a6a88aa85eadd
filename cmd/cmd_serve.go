// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/addrcheck/server"
	"github.com/spf13/cobra"
)

var errMissingToken = errors.New("API_TOKEN is required to serve")

func newServeCmd() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves POST /validate-address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			if err := configValidator.Var(cfg.APIToken, "required"); err != nil {
				return errMissingToken
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := slog.Default()
			metrics := server.NewMetrics(server.DefaultNamespace)

			orch, c, err := buildPipeline(ctx, cfg, logger, metrics)
			if err != nil {
				return err
			}

			metrics.RegisterCache(c)

			if !cfg.Debug {
				gin.SetMode(gin.ReleaseMode)
			}

			logger.Info("starting address validation service",
				"version", Version,
				"providers", orch.Providers(),
				"timeout", cfg.ServiceTimeout,
				"cache_max_size", cfg.CacheMaxSize,
				"cache_ttl", cfg.CacheTTL,
			)

			srv := server.New(frontValidator(orch), c, server.Options{
				Token:         cfg.APIToken,
				AllowOrigin:   cfg.APIDomain,
				RatePerMinute: cfg.RatePerMinute,
				RatePerSecond: cfg.RatePerSecond,
				Logger:        logger,
				Metrics:       metrics,
			})

			if err := srv.Run(ctx, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))); err != nil {
				return fmt.Errorf("serving: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().String("host", "", "listen address (HOST)")
	cmd.Flags().Int("port", 0, "listen port (PORT)")

	_ = v.BindPFlag("HOST", cmd.Flags().Lookup("host"))
	_ = v.BindPFlag("PORT", cmd.Flags().Lookup("port"))

	return cmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
