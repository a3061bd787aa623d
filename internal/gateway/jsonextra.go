package gateway

import "encoding/json"

// decodeWithExtra unmarshals raw into both a typed struct and a
// map[string]any, returning the map entries not named in known so callers
// can forward fields the typed struct doesn't model (§6.1 "additional
// fields are preserved and passed through when proxying to
// OpenAI-compatible backends").
func decodeWithExtra(raw []byte, known ...string) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}
