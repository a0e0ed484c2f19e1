package cascade

import (
	"maps"
	"reflect"
)

// View is the flat submission view derived from selections and accepted
// slot results. A key is present only when its source holds a value.
type View map[string]any

// Clone returns a shallow copy of v.
func (v View) Clone() View {
	if v == nil {
		return View{}
	}

	return maps.Clone(v)
}

// BuildView derives the submission view. Level IDs are emitted under every
// view key of their LevelSpec, extras under their ViewKey, and each accepted
// slot result is flattened through its Fields function. Slots are applied
// after selections in declaration order, so a later source wins on a key
// collision. Nil values are never emitted.
func BuildView(g *Graph, selections map[Level]ID, extras map[string]string, slots []SlotState) View {
	v := View{}

	for _, l := range g.levels {
		id, ok := selections[l.Name]
		if !ok {
			continue
		}

		for _, k := range l.ViewKeys {
			v[k] = id
		}
	}

	for _, e := range g.extras {
		if e.ViewKey == "" {
			continue
		}

		if val, ok := extras[e.Name]; ok {
			v[e.ViewKey] = val
		}
	}

	specs := make(map[string]*SlotSpec, len(g.slots))
	for i := range g.slots {
		specs[g.slots[i].Name] = &g.slots[i]
	}

	for _, st := range slots {
		if !st.Accepted || st.Result == nil {
			continue
		}

		spec := specs[st.Name]
		if spec == nil || spec.Fields == nil {
			continue
		}

		for k, val := range spec.Fields(st.Result) {
			if isNil(val) {
				continue
			}

			v[k] = val
		}
	}

	return v
}

// isNil reports whether val is nil or a nil pointer, map, or slice.
func isNil(val any) bool {
	if val == nil {
		return true
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() { //nolint:exhaustive // only nillable kinds matter
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
