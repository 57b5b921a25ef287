package cowsay

import "time"

const (
	DefaultModelID       = "cowsay-default"
	CapabilityTextToText = "TEXT_TO_TEXT"
)

type Pricing struct {
	InputCost  float64 `json:"inputCost"`
	OutputCost float64 `json:"outputCost"`
	Currency   string  `json:"currency"`
}

// Model describes a text-to-text model served by this gateway.
type Model struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Capabilities []string       `json:"capabilities"`
	Parameters   map[string]int `json:"parameters"`
	Pricing      Pricing        `json:"pricing"`
}

// Models lists what the gateway serves. Parameters mirror the limits the
// render endpoint enforces; timeout is in milliseconds.
func Models(maxLength int, timeout time.Duration) []Model {
	return []Model{
		{
			ID:           DefaultModelID,
			Name:         "Cowsay Default",
			Description:  "A simple text-to-text model that generates ASCII art of a cow saying your text.",
			Capabilities: []string{CapabilityTextToText},
			Parameters: map[string]int{
				"maxLength": maxLength,
				"timeout":   int(timeout / time.Millisecond),
			},
			Pricing: Pricing{Currency: "USD"},
		},
	}
}
