package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"kcore/internal/config"
	"kcore/internal/kernel"
)

func newRunCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the kernel core and block until HALT",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}

			k, err := kernel.Boot(cfg)
			if err != nil {
				return err
			}

			if cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", k.Metrics.Handler())
				go func() {
					k.Log.Infof("serving metrics on %s", cfg.MetricsAddr)
					if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
						k.Log.Errorf("metrics server: %v", err)
					}
				}()
			}

			fmt.Printf("kerneld: session %s booted\n", k.SessionID)
			k.Wait()
			return k.Shutdown()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9100")
	return cmd
}
