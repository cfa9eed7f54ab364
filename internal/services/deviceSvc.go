package services

import (
	"context"
	"sync"

	"github.com/bxcodec/faker/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/config"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/mtconnect"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/registry"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/simulators"
)

// DeviceSvc is a configured MTConnect device and the simulators driving its samples.
type DeviceSvc struct {
	ctx    *addressspace.Context
	reg    *registry.Registry
	logger *zap.SugaredLogger

	Device mtconnect.Device
	// Simulated samples keyed by browse path
	Simulators map[string]*simulators.SampleSim
	samples    map[string]mtconnect.SampleDataItem
}

// NewDeviceInstance instantiates the device described by cfg with its components and
// samples. With initOptional the optional children of the device and its components
// are created too.
func NewDeviceInstance(ctx *addressspace.Context, reg *registry.Registry, cfg config.Device, initOptional bool, logger *zap.SugaredLogger) (*DeviceSvc, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx.Lock()
	defer ctx.Unlock()

	logger.Debugw("Setting up a new device instance 🔔", "device", cfg.Name)
	dev, err := mtconnect.NewDevice(ctx, reg, cfg.Name, nil)
	if err != nil {
		return nil, err
	}
	d := &DeviceSvc{
		ctx:        ctx,
		reg:        reg,
		logger:     logger,
		Device:     dev,
		Simulators: map[string]*simulators.SampleSim{},
		samples:    map[string]mtconnect.SampleDataItem{},
	}
	if initOptional {
		if err := reg.InitializeOptionalChildren(ctx, dev.Node()); err != nil {
			return nil, err
		}
	}
	if err := d.describe(dev, cfg); err != nil {
		return nil, err
	}
	for _, s := range cfg.Samples {
		if err := d.addSample(dev, s); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.Components {
		comp, err := dev.AddComponent(reg, c.Type, c.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "device %s", cfg.Name)
		}
		if initOptional {
			if err := reg.InitializeOptionalChildren(ctx, comp.Node()); err != nil {
				return nil, err
			}
		}
		if err := comp.SetAvailability(mtconnect.Available); err != nil {
			return nil, err
		}
		if c.Model != "" {
			if err := comp.SetModel(c.Model); err != nil {
				return nil, err
			}
		}
		for _, s := range c.Samples {
			if err := d.addSample(comp.Device, s); err != nil {
				return nil, err
			}
		}
	}
	logger.Infow("Device added successfully ✅", "device", cfg.Name, "samples", len(d.samples))
	return d, nil
}

func (d *DeviceSvc) describe(dev mtconnect.Device, cfg config.Device) error {
	if err := dev.SetAvailability(mtconnect.Available); err != nil {
		return err
	}
	if cfg.Manufacturer != "" {
		if err := dev.SetManufacturer(cfg.Manufacturer); err != nil {
			return err
		}
	}
	// simulated devices without a configured serial get a generated one
	serial := cfg.SerialNumber
	if serial == "" {
		serial = faker.UUIDDigit()
	}
	if err := dev.SetSerialNumber(serial); err != nil {
		return err
	}
	if cfg.SampleInterval > 0 {
		return dev.SetSampleInterval(cfg.SampleInterval)
	}
	return nil
}

func (d *DeviceSvc) addSample(parent mtconnect.Device, s config.Sample) error {
	item, err := parent.AddSample(d.reg, s.Category, s.Name, s.Units)
	if err != nil {
		return errors.Wrapf(err, "%s", parent.Node().BrowsePath())
	}
	path := item.Node().BrowsePath()
	d.samples[path] = item
	d.Simulators[path] = simulators.NewSampleSim(path, s.Mean, s.StdDev, s.DelayMin, s.DelayMax, s.Randomize)
	return nil
}

// Node returns the root node of the device.
func (d *DeviceSvc) Node() *addressspace.Node {
	return d.Device.Node()
}

// Run drives every sample from its simulator until ctx is done. Values are written with
// the context locked.
func (d *DeviceSvc) Run(ctx context.Context) {
	wg := sync.WaitGroup{}
	for path, sim := range d.Simulators {
		item := d.samples[path]
		wg.Add(1)
		go func(sim *simulators.SampleSim, item mtconnect.SampleDataItem) {
			defer wg.Done()
			sim.Run(ctx, d.logger, func(v float64) {
				d.ctx.Lock()
				item.Set(v)
				d.ctx.Unlock()
			})
		}(sim, item)
	}
	wg.Wait()
	d.logger.Infow("Device simulators stopped", "device", d.Device.Name())
}

// SetUnavailable marks the device and its components unavailable.
func (d *DeviceSvc) SetUnavailable() error {
	d.ctx.Lock()
	defer d.ctx.Unlock()
	if err := d.Device.SetAvailability(mtconnect.Unavailable); err != nil {
		return err
	}
	for _, c := range d.Device.Components() {
		if err := c.SetAvailability(mtconnect.Unavailable); err != nil {
			return err
		}
	}
	return nil
}
