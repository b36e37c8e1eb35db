package engine

import (
	"k8s.io/examples/AI/modelpipeline/pkg/plan"
)

const notBoundary plan.Ref = -2

// computeBoundaries finds the resumable boundaries of layers.
//
// A forward pass can be cut before layer s when everything layers s.. read
// from before s is a single value: that value is then the whole state that
// has to travel between calls. The result holds that value for every
// boundary, and notBoundary elsewhere. Layer 0 is always a boundary carrying
// the external input.
func computeBoundaries(layers []Layer) []plan.Ref {
	// lastUse[r+1] is the last layer reading r; index 0 is the external input.
	lastUse := make([]int, len(layers)+1)
	for i := range lastUse {
		lastUse[i] = -1
	}
	for _, l := range layers {
		for _, in := range l.Inputs {
			lastUse[in+1] = max(lastUse[in+1], l.Index)
		}
	}

	carried := make([]plan.Ref, len(layers))
	live := map[plan.Ref]bool{}
	if lastUse[0] >= 0 {
		live[plan.ExternalInput] = true
	}
	for s := range layers {
		if s > 0 {
			produced := plan.Ref(s - 1)
			if lastUse[s] >= s {
				live[produced] = true
			}
			for r := range live {
				if lastUse[r+1] < s {
					delete(live, r)
				}
			}
		}

		carried[s] = notBoundary
		if len(live) == 1 {
			for r := range live {
				carried[s] = r
			}
		}
	}
	return carried
}
