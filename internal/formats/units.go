package formats

import (
	"fmt"
	"strings"
)

// unitScale returns the factor converting a physical dimension to volts.
// An empty unit is read as microvolts.
func unitScale(unit string) (float64, error) {
	u := strings.TrimSpace(unit)
	switch u {
	case "", "uV", "µV", "μV", "microV":
		return 1e-6, nil
	case "mV":
		return 1e-3, nil
	case "V":
		return 1, nil
	case "nV":
		return 1e-9, nil
	}
	switch strings.ToLower(u) {
	case "uv":
		return 1e-6, nil
	case "mv":
		return 1e-3, nil
	case "v":
		return 1, nil
	case "nv":
		return 1e-9, nil
	}
	return 0, fmt.Errorf("unsupported unit %q", unit)
}
