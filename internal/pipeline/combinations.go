package pipeline

import (
	"strings"

	"datapipe/internal/models"
)

// Binding pairs an input name with the entry chosen for it
type Binding struct {
	InputName string
	Entry     models.DataEntry
}

// Combination is an ordered set of bindings, at most one per input
type Combination []Binding

// Keys returns the deduplicated union of the participating entries' keys, in first-seen order
func (c Combination) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, b := range c {
		for _, k := range b.Entry.KeyList {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// ValidateInputs rejects empty input lists, unknown modes and duplicate input names
func ValidateInputs(inputs []models.InputSpec) error {
	if len(inputs) == 0 {
		return Validation("at least one input is required")
	}
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.InputObjectName) == "" {
			return Validation("input_object_name is required")
		}
		if _, err := models.ParseMode(string(in.Mode)); err != nil {
			return Validation("input '%s': %v", in.InputObjectName, err)
		}
		if _, dup := seen[in.InputObjectName]; dup {
			return Validation("input '%s' is listed more than once", in.InputObjectName)
		}
		seen[in.InputObjectName] = struct{}{}
	}
	return nil
}

// CombineEvents folds entries into one synthetic entry: values and non-nil summaries are
// space-joined and keys are unioned in first-seen order. An empty list stays empty.
func CombineEvents(entries []models.DataEntry) []models.DataEntry {
	if len(entries) == 0 {
		return nil
	}

	values := make([]string, 0, len(entries))
	var summaries []string
	seen := make(map[string]struct{})
	keys := []string{}
	for _, e := range entries {
		values = append(values, e.Value)
		if e.SummaryValue != nil {
			summaries = append(summaries, *e.SummaryValue)
		}
		for _, k := range e.KeyList {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	combined := models.DataEntry{KeyList: keys, Value: strings.Join(values, " ")}
	if joined := strings.Join(summaries, " "); joined != "" {
		combined.SummaryValue = &joined
	}
	return []models.DataEntry{combined}
}

// MatchingPairs returns every (a, b) pair whose key lists intersect, in nested input order
func MatchingPairs(left, right []models.DataEntry) [][2]models.DataEntry {
	var pairs [][2]models.DataEntry
	for _, a := range left {
		for _, b := range right {
			if a.SharesKey(b) {
				pairs = append(pairs, [2]models.DataEntry{a, b})
			}
		}
	}
	return pairs
}

// BuildCombinations enumerates the entry combinations a prompt is applied to.
//
// A single input yields one combination per entry. Several inputs without match_keys
// yield the full Cartesian product in declared order, last input varying fastest.
// With match_keys, every input pair (i < j) where at least one side is match_keys
// contributes one combination per key-sharing entry pair; the remaining inputs are
// filled with their first entry, or omitted when they have none.
func BuildCombinations(inputs []models.InputSpec, objects map[string]*models.DataObject) ([]Combination, error) {
	if err := ValidateInputs(inputs); err != nil {
		return nil, err
	}

	lists := make([][]models.DataEntry, len(inputs))
	hasMatch := false
	for i, in := range inputs {
		obj, ok := objects[in.InputObjectName]
		if !ok || obj == nil {
			return nil, NotFound("Input object '%s' not found", in.InputObjectName)
		}
		entries := obj.Data
		if in.Mode == models.ModeCombineEvents {
			entries = CombineEvents(entries)
		}
		lists[i] = entries
		if in.Mode == models.ModeMatchKeys {
			hasMatch = true
		}
	}

	switch {
	case len(inputs) == 1:
		combos := make([]Combination, 0, len(lists[0]))
		for _, e := range lists[0] {
			combos = append(combos, Combination{{InputName: inputs[0].InputObjectName, Entry: e}})
		}
		return combos, nil

	case !hasMatch:
		return cartesian(inputs, lists), nil

	default:
		return matched(inputs, lists), nil
	}
}

func cartesian(inputs []models.InputSpec, lists [][]models.DataEntry) []Combination {
	total := 1
	for _, l := range lists {
		total *= len(l)
	}
	if total == 0 {
		return []Combination{}
	}

	combos := make([]Combination, 0, total)
	idx := make([]int, len(lists))
	for {
		combo := make(Combination, len(lists))
		for i, l := range lists {
			combo[i] = Binding{InputName: inputs[i].InputObjectName, Entry: l[idx[i]]}
		}
		combos = append(combos, combo)

		// odometer increment, rightmost first
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(lists[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return combos
		}
	}
}

func matched(inputs []models.InputSpec, lists [][]models.DataEntry) []Combination {
	combos := []Combination{}
	for i := 0; i < len(inputs); i++ {
		for j := i + 1; j < len(inputs); j++ {
			if inputs[i].Mode != models.ModeMatchKeys && inputs[j].Mode != models.ModeMatchKeys {
				continue
			}
			for _, pair := range MatchingPairs(lists[i], lists[j]) {
				combo := make(Combination, 0, len(inputs))
				for k := range inputs {
					switch {
					case k == i:
						combo = append(combo, Binding{InputName: inputs[k].InputObjectName, Entry: pair[0]})
					case k == j:
						combo = append(combo, Binding{InputName: inputs[k].InputObjectName, Entry: pair[1]})
					case len(lists[k]) > 0:
						combo = append(combo, Binding{InputName: inputs[k].InputObjectName, Entry: lists[k][0]})
					}
				}
				combos = append(combos, combo)
			}
		}
	}
	return combos
}
