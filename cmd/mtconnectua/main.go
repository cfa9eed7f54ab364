package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/api"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/config"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/log"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/mtconnect"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/nodeset"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/notify"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/registry"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/services"
)

func main() {
	version := "v1.0.0"
	banner := `
 __  __ _____ ____                            _      ___  ____   ____ _   _   _
|  \/  |_   _/ ___|___  _ __  _ __   ___  ___| |_   / _ \|  _ \ / ___| | | | / \    %s
| |\/| | | || |   / _ \| '_ \| '_ \ / _ \/ __| __| | | | | |_) | |   | | | |/ _ \
| |  | | | || |__| (_) | | | | | | |  __/ (__| |_  | |_| |  __/| |___| |_| / ___ \
|_|  |_| |_| \____\___/|_| |_|_| |_|\___|\___|\__|  \___/|_|    \____|\___/_/   \_\
MTConnect Devices Over OPCUA
______________________________________________________________________________O/__________
                                                                              O\
`
	// Print Banner
	fmt.Println(log.Colorize(fmt.Sprintf(banner, version), log.Cyan))

	logger := log.NewLogger("info")
	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatalf("Config not loaded ❌ %v", err)
	}
	logger = log.NewLogger(cfg.Logger.Level)
	defer logger.Sync()

	ids, err := registry.IDGeneratorFor(cfg.Model.IDScheme)
	if err != nil {
		logger.Fatal(err)
	}
	reg, err := mtconnect.NewRegistry(
		registry.WithIDGenerator(ids),
		registry.WithCacheTTL(cfg.Model.CacheTTL),
		registry.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal(err)
	}
	for _, file := range cfg.Model.Files {
		m, err := nodeset.LoadFile(file)
		if err != nil {
			logger.Fatalf("Model %s not loaded ❌ %v", file, err)
		}
		kinds, err := m.Apply(reg)
		if err != nil {
			logger.Fatalf("Model %s not registered ❌ %v", file, err)
		}
		logger.Infow(log.Colorize("Model loaded ✅", log.Green), "file", file, "types", len(kinds))
	}

	// every tree shares one context, made after the namespace table is complete
	asCtx := reg.NewContext(logger)
	dispatcher := notify.NewDispatcher(asCtx, cfg.Dispatch.Interval, logger)

	devices := make([]*services.DeviceSvc, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		d, err := services.NewDeviceInstance(asCtx, reg, dc, cfg.Model.InitOptional, logger)
		if err != nil {
			logger.Fatalf("Device %s not created ❌ %v", dc.Name, err)
		}
		dispatcher.AddRoot(d.Node())
		devices = append(devices, d)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// the dispatcher outlives the simulators so the final state is delivered
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	var uaSrv *services.UaSrvService
	if cfg.Server.Enabled {
		uaSrv, err = services.NewUaSrvService(cfg.Server, logger)
		if err != nil {
			logger.Fatal(err)
		}
		if err := uaSrv.ExportTypes(reg); err != nil {
			logger.Fatal(err)
		}
		for _, d := range devices {
			if err := uaSrv.Export(asCtx, d.Node()); err != nil {
				logger.Fatal(err)
			}
		}
		dispatcher.Subscribe(uaSrv)
		go func() {
			if err := uaSrv.ListenAndServe(); err != nil {
				logger.Error(err)
			}
		}()
	}

	// the MQTT loop stops after the dispatcher so the last sweep is published
	publishCtx, stopPublish := context.WithCancel(context.Background())
	defer stopPublish()
	publishing := sync.WaitGroup{}
	if cfg.MQTT.Enabled {
		mqttSvc := services.NewMqttService(cfg.MQTT, logger)
		cm, cancel, err := mqttSvc.Connect(context.Background())
		if err != nil {
			logger.Errorf("MQTT disabled ❌ %v", err)
		} else {
			defer mqttSvc.Close(cancel)
			dispatcher.Subscribe(mqttSvc)
			publishing.Add(1)
			go func() {
				defer publishing.Done()
				mqttSvc.Run(publishCtx, cm)
			}()
		}
	}

	if cfg.HTTP.Enabled {
		httpSrv := api.NewServer(asCtx, reg, dispatcher.Roots, logger)
		go func() {
			if err := httpSrv.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
				logger.Error(err)
			}
		}()
	}

	dispatching := make(chan struct{})
	go func() {
		defer close(dispatching)
		dispatcher.Run(dispatchCtx)
	}()

	simulators := sync.WaitGroup{}
	for _, d := range devices {
		simulators.Add(1)
		go func(d *services.DeviceSvc) {
			defer simulators.Done()
			d.Run(ctx)
		}(d)
	}

	<-ctx.Done()
	logger.Warn(log.Colorize("Signal caught ❌ Exiting...", log.Magenta))
	simulators.Wait()
	for _, d := range devices {
		if err := d.SetUnavailable(); err != nil {
			logger.Error(err)
		}
	}
	stopDispatch()
	<-dispatching
	stopPublish()
	publishing.Wait()
	if uaSrv != nil {
		if err := uaSrv.Close(); err != nil {
			logger.Error(err)
		}
	}
}
