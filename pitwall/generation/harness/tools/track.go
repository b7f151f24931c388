package tools

import (
	"context"
	"encoding/json"
)

const trackConditionsMessage = "Live weather data is not yet available. Please check a weather service or the official F1 app for current conditions."

const trackSchema = `{
  "type": "object",
  "properties": {
    "location": {"type": "string", "description": "Circuit or city"}
  }
}`

type trackConditionsTool struct{}

func (trackConditionsTool) Name() string { return "get_track_conditions" }

func (trackConditionsTool) Description() string {
	return "Current weather and track conditions at a circuit."
}

func (trackConditionsTool) Schema() []byte { return []byte(trackSchema) }

func (trackConditionsTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Location string `json:"location"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	return trackConditionsMessage, nil
}
