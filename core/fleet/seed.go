package fleet

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/ridefleet/core/model"
)

// Seed lists the records created at bootstrap. Drivers named in Online are
// brought online once registered.
type Seed struct {
	Drivers    []model.Driver    `yaml:"drivers"`
	Passengers []model.Passenger `yaml:"passengers"`
	Online     []string          `yaml:"online"`
}

// LoadSeed reads a YAML seed document from path.
func LoadSeed(path string) (Seed, error) {
	var s Seed
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read seed: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return s, nil
}

// BootstrapResult counts what Bootstrap created.
type BootstrapResult struct {
	Drivers    int
	Passengers int
	Online     int
}

// Bootstrap registers the seed's drivers and passengers through the regular
// write path as the system principal. Existing ids are skipped, so running
// it twice is harmless.
func (e *Engine) Bootstrap(ctx context.Context, s Seed) (BootstrapResult, error) {
	var res BootstrapResult
	for _, d := range s.Drivers {
		_, err := e.Drivers.Register(ctx, model.System, d)
		switch {
		case err == nil:
			res.Drivers++
		case errors.Is(err, model.ErrInvalidArgument) && e.exists(ctx, d.ID, true):
		default:
			return res, fmt.Errorf("seed driver %s: %w", d.ID, err)
		}
	}
	for _, p := range s.Passengers {
		_, err := e.Passengers.Register(ctx, model.System, p)
		switch {
		case err == nil:
			res.Passengers++
		case errors.Is(err, model.ErrInvalidArgument) && e.exists(ctx, p.ID, false):
		default:
			return res, fmt.Errorf("seed passenger %s: %w", p.ID, err)
		}
	}
	for _, id := range s.Online {
		d, err := e.Drivers.Get(ctx, id)
		if err != nil {
			return res, fmt.Errorf("seed online %s: %w", id, err)
		}
		if d.Online {
			continue
		}
		if _, err := e.Drivers.SetOnline(ctx, model.System, id, true); err != nil {
			return res, fmt.Errorf("seed online %s: %w", id, err)
		}
		res.Online++
	}
	e.rt.log.Infof("bootstrap: %d drivers, %d passengers registered, %d drivers online", res.Drivers, res.Passengers, res.Online)
	return res, nil
}

func (e *Engine) exists(ctx context.Context, id string, driver bool) bool {
	if driver {
		_, err := e.Drivers.Get(ctx, id)
		return err == nil
	}
	_, err := e.Passengers.Get(ctx, model.System, id)
	return err == nil
}

// DefaultSeed is a small fleet for local runs.
func DefaultSeed() Seed {
	return Seed{
		Drivers: []model.Driver{
			{ID: "driver-1", Name: "John Smith", LicensePlate: "ABC-123", Vehicle: model.Vehicle{Make: "Toyota", Model: "Camry", Color: "Silver"}, Rating: 4.8},
			{ID: "driver-2", Name: "Sarah Johnson", LicensePlate: "XYZ-789", Vehicle: model.Vehicle{Make: "Honda", Model: "Accord", Color: "Black"}, Rating: 4.9},
			{ID: "driver-3", Name: "Mike Davis", LicensePlate: "DEF-456", Vehicle: model.Vehicle{Make: "Ford", Model: "Fusion", Color: "White"}, Rating: 4.7},
		},
		Passengers: []model.Passenger{
			{ID: "passenger-1", Name: "Alice Brown", Rating: 4.9},
			{ID: "passenger-2", Name: "Bob Wilson", Rating: 4.6},
		},
	}
}
