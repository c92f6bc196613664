package convert

import (
	stderrors "errors"

	corev1 "k8s.io/api/core/v1"
)

// PendingTPUType is the tpu_type recorded for a pending pod whose node
// selector does not name an accelerator.
const PendingTPUType = "pending"

// RequestsTPU reports whether any regular container of the pod requests
// google.com/tpu.
func RequestsTPU(pod *corev1.Pod) bool {
	for i := range pod.Spec.Containers {
		if _, ok := pod.Spec.Containers[i].Resources.Requests[ResourceTPU]; ok {
			return true
		}
	}
	return false
}

// PendingPodTPUType guesses the accelerator a pending pod is waiting for
// from its node selector.
func PendingPodTPUType(pod *corev1.Pod) string {
	if v := pod.Spec.NodeSelector[LabelTPUAccelerator]; v != "" {
		return v
	}
	return PendingTPUType
}

// SumPodRequests parses every container request of the pod and sums them per
// resource name. Entries that fail to parse are left out of the result and
// reported together in the returned error.
func SumPodRequests(pod *corev1.Pod) (map[string]float64, error) {
	sums := make(map[string]float64)
	var errs []error
	for i := range pod.Spec.Containers {
		for name, q := range pod.Spec.Containers[i].Resources.Requests {
			v, err := ParseResource(QuantityString(q), string(name))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			sums[string(name)] += v
		}
	}
	return sums, stderrors.Join(errs...)
}
