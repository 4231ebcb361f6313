package util

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ConvertMapToStruct normalizes data through JSON first so that values
// structpb cannot take directly (typed slices, nested structs) still convert.
func ConvertMapToStruct(data map[string]any) (*structpb.Struct, error) {
	if data == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}
	return structpb.NewStruct(normalized)
}

func ConvertStructListToMaps(list *structpb.ListValue) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		m, ok := v.AsInterface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is not an object", i)
		}
		out = append(out, m)
	}
	return out, nil
}
