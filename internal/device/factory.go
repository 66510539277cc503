package device

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/mkurtov/haierbridge/internal/model"
)

// ClassifyKind decides the device variant from the descriptor's type and
// model strings. The kind is fixed once at construction.
func ClassifyKind(desc Descriptor) Kind {
	deviceType := strings.ToUpper(strings.TrimSpace(desc.Type))
	switch deviceType {
	case "AC", "AIR_CONDITIONER", "AIRCONDITIONER":
		return KindAirConditioner
	case "REF", "REFRIGERATOR", "FRIDGE":
		return KindRefrigerator
	}

	m := strings.ToUpper(desc.Model)
	switch {
	case strings.HasPrefix(m, "HRF"), strings.HasPrefix(m, "HTF"),
		strings.HasPrefix(m, "A3FE"), strings.HasPrefix(m, "C2FE"):
		return KindRefrigerator
	case strings.HasPrefix(m, "AS"), strings.HasPrefix(m, "HSU"),
		strings.HasPrefix(m, "AW"), strings.HasPrefix(m, "AP"),
		strings.HasPrefix(m, "1U"):
		return KindAirConditioner
	}
	return KindUnknown
}

// Create classifies a descriptor and instantiates the matching engine
// variant. Unknown kinds get the base engine: status only, every typed
// mutator not-supported.
func Create(desc Descriptor, registry *model.Registry, commander Commander, log zerolog.Logger) Appliance {
	var def *model.Definition
	if registry != nil {
		def = registry.Resolve(desc.Model)
	}

	kind := ClassifyKind(desc)
	engine := newEngine(desc, kind, def, commander, log)
	devicesCreated.WithLabelValues(string(kind)).Inc()

	var appliance Appliance
	switch kind {
	case KindAirConditioner:
		appliance = newAirConditioner(engine)
	case KindRefrigerator:
		appliance = newRefrigerator(engine)
	default:
		appliance = engine
	}

	if len(desc.InitialStatus) > 0 {
		appliance.UpdateFromFields(desc.InitialStatus)
	}
	return appliance
}
