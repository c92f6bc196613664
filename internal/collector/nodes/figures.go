package nodes

import (
	"strings"

	"github.com/kubeadapt/gke-tpu-exporter/internal/convert"
	"github.com/kubeadapt/gke-tpu-exporter/pkg/model"
)

// hostResources are reported for every TPU node that has them in capacity.
var hostResources = []string{
	convert.ResourceCPU,
	convert.ResourceMemory,
	convert.ResourceEphemeralStorage,
}

// chipResourceLabel is the resource_type label used for TPU chips.
const chipResourceLabel = "tpu"

// resourceFigure is one parsed capacity/allocatable pair.
type resourceFigure struct {
	label       string
	capacity    float64
	allocatable float64
}

func (f resourceFigure) usage() float64 {
	return f.capacity - f.allocatable
}

// nodeFigures is everything a node contributes to a pass, fully parsed.
type nodeFigures struct {
	record    model.NodeRecord
	resources []resourceFigure
	chips     *resourceFigure
}

// figuresFor parses every quantity the node contributes. It fails without
// partial results when any quantity is malformed.
func figuresFor(rec model.NodeRecord) (nodeFigures, error) {
	fig := nodeFigures{record: rec}

	for _, res := range hostResources {
		if !rec.HasResource(res) {
			continue
		}
		f, err := parsePair(rec, res)
		if err != nil {
			return nodeFigures{}, err
		}
		f.label = resourceLabel(res)
		fig.resources = append(fig.resources, f)
	}

	if rec.HasResource(convert.ResourceTPU) {
		f, err := parsePair(rec, convert.ResourceTPU)
		if err != nil {
			return nodeFigures{}, err
		}
		f.label = chipResourceLabel
		fig.chips = &f
	}

	return fig, nil
}

// parsePair parses capacity and allocatable of one resource. A missing
// allocatable entry counts as zero.
func parsePair(rec model.NodeRecord, res string) (resourceFigure, error) {
	capacity, err := convert.ParseResource(rec.Capacity[res], res)
	if err != nil {
		return resourceFigure{}, err
	}
	allocatable, err := convert.ParseResource(rec.Allocatable[res], res)
	if err != nil {
		return resourceFigure{}, err
	}
	return resourceFigure{capacity: capacity, allocatable: allocatable}, nil
}

// resourceLabel turns a resource name into a metric label value.
func resourceLabel(res string) string {
	return strings.ReplaceAll(res, "-", "_")
}
