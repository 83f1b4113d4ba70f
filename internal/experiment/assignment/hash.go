package assignment

import (
	"github.com/cespare/xxhash/v2"

	id "blaze/pkg/domain"
)

// bucketCount is the resolution of the traffic gate: allocations are honoured to
// 0.01 percentage points.
const bucketCount = 10000

// Bucket maps (visitor, experiment) to a stable point in [0,1). xxhash64 is
// specified byte-for-byte, so the value is identical across runs and platforms.
func Bucket(visitorID id.VisitorID, experimentID id.ExperimentID) float64 {
	d := xxhash.New()
	_, _ = d.WriteString(visitorID.String())
	// NUL cannot appear in ids, so ("v1","2x") and ("v12","x") never collide.
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(experimentID.String())
	return float64(d.Sum64()%bucketCount) / bucketCount
}
