package engine

import (
	"fmt"
	"slices"
)

// BuildDAG returns an evaluation order for wantTensors: every tensor they
// depend on, transitively, with dependencies before dependents. Tensors the
// outputs do not need are left out.
func BuildDAG(scope Scope, wantTensors []TensorID) ([]TensorID, error) {
	allTensors := scope.AllTensors()

	needed := make(map[TensorID]bool)
	pending := slices.Clone(wantTensors)
	for len(pending) != 0 {
		id := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if needed[id] {
			continue
		}
		tensor, found := allTensors[id]
		if !found {
			return nil, fmt.Errorf("tensor %d not found", id)
		}
		needed[id] = true
		pending = append(pending, tensor.Dependencies()...)
	}

	// Visit in id order so the evaluation order is deterministic.
	ids := make([]TensorID, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	evaluationOrder := make([]TensorID, 0, len(ids))
	done := make(map[TensorID]bool)

	for {
		progress := false
		for _, id := range ids {
			if done[id] {
				continue
			}

			ready := true
			for _, dep := range allTensors[id].Dependencies() {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				done[id] = true
				evaluationOrder = append(evaluationOrder, id)
				progress = true
			}
		}
		if !progress {
			break
		}
	}

	for _, id := range wantTensors {
		if !done[id] {
			return nil, fmt.Errorf("tensor %d could not be computed (cycle in computation graph)", id)
		}
	}

	return evaluationOrder, nil
}
