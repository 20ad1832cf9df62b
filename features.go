package rhi

import (
	"slices"

	"github.com/gogpu/rhi/backend"
)

// Feature names reported in addition to the backend's own list when the
// backend implements the matching optional capability.
const (
	FeatureExternalMemory = "external-memory"
	FeatureTimestampQuery = "timestamp-query"
	FeatureRayTracing     = "ray-tracing"
	FeatureSampler        = "sampler"
)

// FeatureSet is the immutable set of features of a device. It is built once
// when the device is created.
type FeatureSet struct {
	names []string
}

func newFeatureSet(b backend.Backend) FeatureSet {
	names := slices.Clone(b.Features())
	if _, ok := b.(backend.ExternalMemoryImporter); ok {
		names = append(names, FeatureExternalMemory)
	}
	if _, ok := b.(backend.TimestampWriter); ok {
		names = append(names, FeatureTimestampQuery)
	}
	if _, ok := b.(backend.RayTracer); ok {
		names = append(names, FeatureRayTracing)
	}
	if _, ok := b.(backend.SamplerCreator); ok {
		names = append(names, FeatureSampler)
	}
	slices.Sort(names)
	return FeatureSet{names: slices.Compact(names)}
}

// Has reports whether the named feature is present.
func (f FeatureSet) Has(name string) bool {
	_, ok := slices.BinarySearch(f.names, name)
	return ok
}

// Names returns the sorted feature names.
func (f FeatureSet) Names() []string {
	return slices.Clone(f.names)
}

// Len returns the number of features.
func (f FeatureSet) Len() int { return len(f.names) }
