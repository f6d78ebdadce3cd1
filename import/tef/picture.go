package tef

import (
	"encoding/base64"

	"loov.dev/tracemodel/trace"
)

// Picture is a recorded compositor picture, decoded from the snapshots of
// cc::Picture objects.
type Picture struct {
	LayerRect  []float64
	OpaqueRect []float64
	// SKP is the serialized Skia picture.
	SKP []byte
}

func decodePicture(snapshot *trace.ObjectSnapshot) (any, error) {
	args, ok := snapshot.Args.(map[string]any)
	if !ok {
		return nil, Error.Errorf("cc::Picture %s: snapshot is not an object", snapshot.Instance.ID)
	}

	picture := &Picture{}
	if params, ok := args["params"].(map[string]any); ok {
		picture.LayerRect = floats(params["layer_rect"])
		picture.OpaqueRect = floats(params["opaque_rect"])
	}

	skp64, ok := args["skp64"].(string)
	if !ok {
		return nil, Error.Errorf("cc::Picture %s: missing skp64", snapshot.Instance.ID)
	}
	skp, err := base64.StdEncoding.DecodeString(skp64)
	if err != nil {
		return nil, Error.Errorf("cc::Picture %s: %w", snapshot.Instance.ID, err)
	}
	picture.SKP = skp
	return picture, nil
}

func floats(v any) []float64 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(list))
	for _, item := range list {
		if f, ok := item.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}
