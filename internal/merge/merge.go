// Package merge reconciles a persisted snapshot with the compiled-in default
// so that fields added to the schema since the snapshot was written keep
// their default values.
package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/DoyleJ11/overlay-sync/internal/overlay"
)

// Deep returns base with patch laid over it. Keyed objects present on both
// sides are merged recursively; every other value in patch (scalars, arrays,
// null) replaces the base value outright. Neither input is modified.
func Deep(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, pv := range patch {
		pm, patchIsMap := pv.(map[string]any)
		bm, baseIsMap := out[k].(map[string]any)
		if patchIsMap && baseIsMap {
			out[k] = Deep(bm, pm)
			continue
		}
		out[k] = pv
	}
	return out
}

// Reconcile lays the persisted document over def and decodes the result.
// persisted may be any subset of the document, including an empty object.
//
// Persisted values that no longer fit the schema (a hand-edited "45" for a
// number, say) are reverted to their default one leaf at a time; their dotted
// paths come back in dropped. An error means persisted is not a document at
// all, and def is returned.
func Reconcile(def overlay.AppState, persisted []byte) (out overlay.AppState, dropped []string, err error) {
	base, err := tree(def)
	if err != nil {
		return def, nil, fmt.Errorf("encode default: %w", err)
	}

	var patch map[string]any
	if err := decodeNumbers(persisted, &patch); err != nil {
		return def, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if patch == nil {
		return def, nil, fmt.Errorf("decode snapshot: %w", overlay.ErrNotDocument)
	}

	merged := Deep(base, patch)
	if out, err = decodeTree(merged); err == nil {
		return out, nil, nil
	}

	dropped = repair(merged, base, nil)
	if out, err = decodeTree(merged); err != nil {
		return def, dropped, fmt.Errorf("decode merged: %w", err)
	}
	return out, dropped, nil
}

// repair walks m and puts base's value back wherever m's value cannot be
// decoded at that position. m is modified in place.
func repair(m, base map[string]any, prefix []string) []string {
	var dropped []string
	for _, k := range slices.Sorted(maps.Keys(m)) {
		at := append(slices.Clone(prefix), k)
		if fits(at, m[k]) {
			continue
		}
		sub, isMap := m[k].(map[string]any)
		subBase, baseIsMap := base[k].(map[string]any)
		if isMap && baseIsMap {
			dropped = append(dropped, repair(sub, subBase, at)...)
			continue
		}
		if bv, ok := base[k]; ok {
			m[k] = bv
		} else {
			delete(m, k)
		}
		dropped = append(dropped, strings.Join(at, "."))
	}
	return dropped
}

// fits reports whether v decodes when placed at path in an otherwise empty document.
func fits(path []string, v any) bool {
	for i := len(path) - 1; i >= 0; i-- {
		v = map[string]any{path[i]: v}
	}
	_, err := decodeTree(v.(map[string]any))
	return err == nil
}

func decodeTree(m map[string]any) (overlay.AppState, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return overlay.AppState{}, err
	}
	var out overlay.AppState
	err = json.Unmarshal(body, &out)
	return out, err
}

// Carry encodes doc, keeping any keys of raw that doc's schema does not know.
// Known fields always come from doc. With nothing to carry the result is
// exactly doc.Encode().
func Carry(raw []byte, doc overlay.AppState) ([]byte, error) {
	body, err := doc.Encode()
	if err != nil || len(raw) == 0 {
		return body, err
	}
	var extra map[string]any
	if err := decodeNumbers(raw, &extra); err != nil || extra == nil {
		return body, nil
	}
	known, err := tree(doc)
	if err != nil {
		return nil, err
	}
	if !hasUnknown(extra, known) {
		return body, nil
	}
	return json.Marshal(Deep(extra, known))
}

func hasUnknown(m, known map[string]any) bool {
	for k, v := range m {
		kv, ok := known[k]
		if !ok {
			return true
		}
		sub, isMap := v.(map[string]any)
		subKnown, knownIsMap := kv.(map[string]any)
		if isMap && knownIsMap && hasUnknown(sub, subKnown) {
			return true
		}
	}
	return false
}

func tree(doc overlay.AppState) (map[string]any, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := decodeNumbers(body, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeNumbers keeps integers exact instead of routing them through float64.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
