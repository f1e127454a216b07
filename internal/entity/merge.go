package entity

import "time"

// MergePlan lists the line changes needed to fold one cart into another.
type MergePlan struct {
	// Updated are target lines whose quantity grew. Their price snapshot is the
	// target's own.
	Updated []CartLine
	// Moved are source lines re-parented onto the target cart unchanged.
	Moved []CartLine
	// Absorbed are source lines whose quantity went into an existing target line.
	Absorbed []CartLine
}

// Empty reports whether the plan changes nothing.
func (p MergePlan) Empty() bool {
	return len(p.Updated) == 0 && len(p.Moved) == 0 && len(p.Absorbed) == 0
}

// MergeLines folds source lines into target lines. Lines sharing a LineKey have
// their quantities summed onto the target line, which keeps its price snapshot;
// every other source line moves to targetCartID as is.
func MergeLines(targetCartID string, target, source []CartLine, now time.Time) MergePlan {
	var plan MergePlan

	merged := make([]CartLine, len(target))
	copy(merged, target)
	index := make(map[LineKey]int, len(merged))
	for i, l := range merged {
		index[l.Key()] = i
	}
	updated := make(map[int]bool)
	moved := make(map[LineKey]int)

	for _, src := range source {
		if i, ok := index[src.Key()]; ok {
			merged[i].Quantity += src.Quantity
			merged[i].UpdatedAt = now
			updated[i] = true
			plan.Absorbed = append(plan.Absorbed, src)
			continue
		}
		if j, ok := moved[src.Key()]; ok {
			plan.Moved[j].Quantity += src.Quantity
			plan.Absorbed = append(plan.Absorbed, src)
			continue
		}
		src.CartID = targetCartID
		src.UpdatedAt = now
		moved[src.Key()] = len(plan.Moved)
		plan.Moved = append(plan.Moved, src)
	}

	for i, l := range merged {
		if updated[i] {
			plan.Updated = append(plan.Updated, l)
		}
	}
	return plan
}
