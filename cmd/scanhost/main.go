// scanhost is the motion host daemon for the scanner rig. It owns the
// serial link to the motion controller and exposes the HTTP API the
// dashboard and scan orchestrator consume.
//
// Usage:
//
//	scanhost serve --config /etc/scanhost.yaml
//	scanhost serve --transport tcp --address 127.0.0.1:2323 --listen :8080
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/api"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/config"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/controller"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/log"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/metrics"
)

var flags struct {
	configPath string
	transport  string
	device     string
	address    string
	listen     string
	logLevel   string
}

func main() {
	root := &cobra.Command{
		Use:           "scanhost",
		Short:         "Motion host for the scanner rig",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the controller and serve the HTTP API",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&flags.configPath, "config", "", "path to scanhost.yaml")
	serve.Flags().StringVar(&flags.transport, "transport", "", "override transport kind: serial, tcp, websocket")
	serve.Flags().StringVar(&flags.device, "device", "", "override serial device path")
	serve.Flags().StringVar(&flags.address, "address", "", "override tcp/websocket controller address")
	serve.Flags().StringVar(&flags.listen, "listen", "", "override HTTP listen address")
	serve.Flags().StringVar(&flags.logLevel, "log-level", "", "override log level")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		log.New("scanhost").Error("%v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if flags.transport != "" {
		cfg.Transport.Kind = flags.transport
	}
	if flags.device != "" {
		cfg.Transport.Device = flags.device
	}
	if flags.address != "" {
		cfg.Transport.Address = flags.address
	}
	if flags.listen != "" {
		cfg.API.Listen = flags.listen
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, cfg.Validate()
}

func buildLogger(cfg *config.Config) (*log.Logger, error) {
	if cfg.Log.File != "" {
		logger, _, err := log.NewConsoleAndFileLogger("scanhost", log.RotationConfig{
			Filename: cfg.Log.File,
		})
		if err != nil {
			return nil, err
		}
		logger.SetLevel(log.ParseLevel(cfg.Log.Level))
		return logger, nil
	}
	logger := log.New("scanhost")
	logger.SetLevel(log.ParseLevel(cfg.Log.Level))
	return logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	opts := controller.OptionsFromConfig(cfg)
	opts.Logger = logger.WithPrefix("controller")
	opts.Metrics = m

	client, err := controller.Connect(cfg, opts)
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("controller connected via %s", cfg.Transport.Kind)

	server := api.New(client, cfg.Mapping(), logger.WithPrefix("api"), cfg.API.CORSOrigins)
	httpSrv := &http.Server{
		Addr:    cfg.API.Listen,
		Handler: server.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.API.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down on %v", sig)
	case err := <-errc:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown: %v", err)
	}
	return nil
}
