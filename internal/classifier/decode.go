package classifier

import (
	"NetSpectraIDS/internal/model"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const unknownLabel = "Unknown"

// fields is a decoded JSON object whose members are read one typed slot at a
// time, each falling back to a default when absent or of the wrong shape.
type fields map[string]json.RawMessage

func parseFields(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("expected a JSON object, got %s", strings.TrimSpace(string(data)))
	}
	return f, nil
}

func (f fields) getFloat(key string, def float64) float64 {
	raw, ok := f[key]
	if !ok {
		return def
	}
	return rawFloat(raw, def)
}

func (f fields) getInt(key string, def int) int {
	raw, ok := f[key]
	if !ok {
		return def
	}
	v := rawFloat(raw, float64(def))
	return int(v)
}

func (f fields) getString(key, def string) string {
	var s string
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return def
}

func (f fields) getBool(key string) bool {
	var b bool
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &b) == nil {
		return b
	}
	return false
}

func (f fields) object(key string) fields {
	raw, ok := f[key]
	if !ok {
		return fields{}
	}
	var nested fields
	if json.Unmarshal(raw, &nested) != nil || nested == nil {
		return fields{}
	}
	return nested
}

func (f fields) floats(key string) []float64 {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = rawFloat(item, 0)
	}
	return out
}

// rawFloat accepts a JSON number or a numeric string.
func rawFloat(raw json.RawMessage, def float64) float64 {
	var n float64
	if json.Unmarshal(raw, &n) == nil {
		return n
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return def
}

func decodePrediction(body []byte) model.Prediction {
	f, err := parseFields(body)
	if err != nil {
		return model.PredictionError(fmt.Sprintf("Error parsing response: %v", err))
	}

	var normal, attack float64
	probs := f.floats("probabilities")
	if len(probs) > 0 {
		normal = probs[0]
	}
	if len(probs) > 1 {
		attack = probs[1]
	}

	return model.NewPrediction(
		f.getInt("prediction", -1),
		f.getString("prediction_label", unknownLabel),
		f.getFloat("confidence", 0),
		normal,
		attack,
	)
}

func decodeHealth(body []byte) model.ServerHealth {
	f, err := parseFields(body)
	if err != nil {
		return model.HealthError(fmt.Sprintf("Error parsing response: %v", err))
	}
	loaded := f.object("models_loaded")
	return model.ServerHealth{
		Status:         f.getString("status", "unknown"),
		TotalFeatures:  f.getInt("total_features", 0),
		EncoderLoaded:  loaded.getBool("encoder"),
		FeaturesLoaded: loaded.getBool("features"),
		ModelLoaded:    loaded.getBool("model"),
		ScalerLoaded:   loaded.getBool("scaler"),
	}
}
