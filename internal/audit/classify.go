package audit

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
)

// classify determines how output differs from input using simple type and
// shape heuristics, and produces a field-level diff where both sides are
// objects. Heuristic by design: payloads are arbitrary.
func classify(input, output any) (domain.TransformationType, []string, []string, []string) {
	in := jsonShape(input)
	out := jsonShape(output)

	switch {
	case isEmpty(in) && !isEmpty(out):
		return domain.TransformationCreation, nil, nil, nil
	case !isEmpty(in) && isEmpty(out):
		return domain.TransformationDeletion, nil, nil, nil
	case kindOf(in) != kindOf(out):
		return domain.TransformationTypeConversion, nil, nil, nil
	}

	inObj, inOK := in.(map[string]any)
	outObj, outOK := out.(map[string]any)
	if !inOK || !outOK {
		return domain.TransformationModification, nil, nil, nil
	}

	added, removed, modified := diffFields(inObj, outObj)
	// dropped fields mean the record's shape changed; pure additions and
	// value edits are ordinary modifications
	if len(removed) > 0 {
		return domain.TransformationStructureChange, added, removed, modified
	}
	return domain.TransformationModification, added, removed, modified
}

type valueKind int

const (
	kindNull valueKind = iota
	kindObject
	kindArray
	kindScalar
)

func kindOf(v any) valueKind {
	switch v.(type) {
	case nil:
		return kindNull
	case map[string]any:
		return kindObject
	case []any:
		return kindArray
	default:
		return kindScalar
	}
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case string:
		return val == ""
	default:
		return false
	}
}

// diffFields computes top-level field changes between two objects.
func diffFields(in, out map[string]any) (added, removed, modified []string) {
	for key, outVal := range out {
		inVal, ok := in[key]
		if !ok {
			added = append(added, key)
			continue
		}
		if !jsonEqual(inVal, outVal) {
			modified = append(modified, key)
		}
	}
	for key := range in {
		if _, ok := out[key]; !ok {
			removed = append(removed, key)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(modified)
	return added, removed, modified
}

func jsonEqual(a, b any) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return true
	}
	return bytes.Equal(rawA, rawB)
}

// jsonShape normalizes v to the map/slice/scalar shape the heuristics
// operate on. Unserializable values are treated as opaque scalars.
func jsonShape(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
