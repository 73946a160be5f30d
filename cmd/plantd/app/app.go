package app

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	genericapiserver "k8s.io/apiserver/pkg/server"
	"k8s.io/klog/v2"

	"github.com/autopeer-io/plantd/cmd/plantd/app/options"
	"github.com/autopeer-io/plantd/internal/irrigation"
	"github.com/autopeer-io/plantd/pkg/app"
	"github.com/autopeer-io/plantd/pkg/log"
)

const (
	commandName = "plantd"
	commandDesc = `plantd ingests soil telemetry from plant monitoring devices over MQTT or NATS,
stores it, and waters plants automatically when the soil gets dry.

It also tracks device connectivity, forwards manual pump commands, exposes
history and metrics over HTTP, and archives and prunes old readings.`
)

func NewApp() *app.App {
	opts := options.NewPlantdOptions()
	var running atomic.Pointer[irrigation.Server]

	application := app.NewApp(
		commandName,
		"Launch the plant irrigation server",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts, &running)),
		app.WithConfigChangeFunc(reload(opts, &running)),
	)
	return application
}

func run(opts *options.PlantdOptions, running *atomic.Pointer[irrigation.Server]) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		klog.SetLogger(log.Std().Logr())

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create plantd server: %w", err)
		}
		running.Store(server)

		return server.Run(ctx)
	}
}

// reload applies the settings that can change without a restart: the log
// level and the irrigation policy.
func reload(opts *options.PlantdOptions, running *atomic.Pointer[irrigation.Server]) app.ConfigChangeFunc {
	return func(fsnotify.Event) {
		if err := log.SetLevel(opts.Log.Level); err != nil {
			log.Error(err, "Failed to apply log level")
		}
		server := running.Load()
		if server == nil {
			return
		}
		if err := server.UpdatePolicy(opts.PolicyOptions); err != nil {
			log.Error(err, "Rejected policy update")
			return
		}
		log.Info("Irrigation policy updated",
			"cooldown", opts.PolicyOptions.Cooldown, "defaultDuration", opts.PolicyOptions.DefaultDuration)
	}
}
