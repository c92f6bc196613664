package convert

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/kubeadapt/gke-tpu-exporter/internal/errors"
)

// Resource names understood by ParseResource.
const (
	ResourceCPU              = "cpu"
	ResourceMemory           = "memory"
	ResourceEphemeralStorage = "ephemeral-storage"
	ResourceTPU              = "google.com/tpu"
)

// binarySuffixes are checked in this order; the first match wins.
var binarySuffixes = []struct {
	suffix string
	mult   float64
}{
	{"Ki", 1 << 10},
	{"Mi", 1 << 20},
	{"Gi", 1 << 30},
	{"Ti", 1 << 40},
}

// ParseResource converts a quantity string to base units for resourceType:
// cores for cpu, bytes for memory and ephemeral-storage, a device count for
// google.com/tpu, and a plain float for anything else. An empty value is 0.
func ParseResource(value, resourceType string) (float64, error) {
	if value == "" {
		return 0, nil
	}

	switch resourceType {
	case ResourceCPU:
		if millis, ok := strings.CutSuffix(value, "m"); ok {
			n, err := strconv.ParseInt(millis, 10, 64)
			if err != nil {
				return 0, invalidQuantity(value, resourceType, err)
			}
			return float64(n) / 1000, nil
		}
		return parseFloat(value, resourceType)

	case ResourceMemory, ResourceEphemeralStorage:
		return parseBytes(value, resourceType)

	case ResourceTPU:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, invalidQuantity(value, resourceType, err)
		}
		return float64(n), nil

	default:
		return parseFloat(value, resourceType)
	}
}

func parseBytes(value, resourceType string) (float64, error) {
	for _, s := range binarySuffixes {
		digits, ok := strings.CutSuffix(value, s.suffix)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
			return float64(n) * s.mult, nil
		}
		break
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return float64(n), nil
	}

	// Decimal SI ("129M"), exponent ("1e9") and fractional binary ("1.5Gi")
	// forms are valid Kubernetes quantities too.
	q, err := resource.ParseQuantity(value)
	if err != nil {
		return 0, invalidQuantity(value, resourceType, err)
	}
	return q.AsApproximateFloat64(), nil
}

func parseFloat(value, resourceType string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, invalidQuantity(value, resourceType, err)
	}
	return f, nil
}

func invalidQuantity(value, resourceType string, cause error) error {
	return errors.Wrap(errors.ErrQuantityInvalid, "convert",
		fmt.Sprintf("invalid %s quantity %q", resourceType, value), cause)
}

// QuantityString renders q in the canonical string form ParseResource expects.
func QuantityString(q resource.Quantity) string {
	return q.String()
}
