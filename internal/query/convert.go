package query

import (
	"gopkg.in/yaml.v3"

	"github.com/rhema-dev/rhema/internal/rhema"
)

// toValue converts any record struct (rhema.Knowledge, rhema.Todo, ...)
// into the dynamic rhema.Value representation used for field projection
// and WHERE-clause evaluation. Round-tripping through YAML reuses the same
// struct tags the Loader parses records with, so field names in CQL match
// the on-disk YAML keys exactly.
func toValue(record interface{}) (rhema.Value, error) {
	raw, err := yaml.Marshal(record)
	if err != nil {
		return rhema.Null(), err
	}
	var decoded interface{}
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return rhema.Null(), err
	}
	return rhema.FromInterface(normalizeYAMLMap(decoded)), nil
}

// normalizeYAMLMap recursively converts yaml.v3's map[string]interface{}
// decode output (it does not produce map[interface{}]interface{} like
// gopkg.in/yaml.v2) into the shapes rhema.FromInterface already expects,
// passing everything else through unchanged.
func normalizeYAMLMap(in interface{}) interface{} {
	switch t := in.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[k] = normalizeYAMLMap(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = normalizeYAMLMap(v)
		}
		return out
	default:
		return t
	}
}
