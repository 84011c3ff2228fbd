package types

// Model represents a loadable GGUF model on disk.
type Model struct {
	// Stable identifier for the model.
	// example: qwen2.5-1.5b-q4
	ID string `json:"id" example:"qwen2.5-1.5b-q4"`
	// Human-friendly name.
	// example: Qwen2.5 1.5B Instruct (Q4)
	Name string `json:"name" example:"Qwen2.5 1.5B Instruct (Q4)"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/qwen2.5-1.5b-instruct-q4_k_m.gguf
	Path string `json:"path" example:"/home/user/models/qwen2.5-1.5b-instruct-q4_k_m.gguf"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant" example:"Q4_K_M"`
	// Optional family (e.g., llama, mistral, qwen).
	// example: qwen
	Family string `json:"family,omitempty" example:"qwen"`
}

// Step is one element of a structured result.
type Step struct {
	// example: Boil water
	Name string `json:"step_name" example:"Boil water"`
	// example: heat water
	ShortDescription string `json:"step_short_description,omitempty" example:"heat water"`
	// example: Bring a pot of water to a rolling boil.
	Description string `json:"step_description,omitempty" example:"Bring a pot of water to a rolling boil."`
	// Offset in seconds, clip-aligned output only.
	// example: 12.5
	Start *float64 `json:"start,omitempty" example:"12.5"`
	// example: 30
	End *float64 `json:"end,omitempty" example:"30"`
}
