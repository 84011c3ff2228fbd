package types

// GenerateRequest is the payload of POST /generate.
type GenerateRequest struct {
	// Free-form text to structure.
	// example: Boil water, add the pasta and cook for ten minutes.
	Input string `json:"input" example:"Boil water, add the pasta and cook for ten minutes."`
	// Grammar reference: a builtin name (steps, short_steps, clip_steps), a
	// path, a bundle:// reference or inline GBNF. Empty uses the server default.
	// example: steps
	Grammar string `json:"grammar,omitempty" example:"steps"`
	// Optional system prompt prepended to every variant.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// Use the remote backend instead of the local model.
	// example: false
	UseCloud bool `json:"use_cloud,omitempty" example:"false"`
	// Total duration in seconds; set to enable clip alignment.
	// example: 95.5
	ClipDuration *float64 `json:"clip_duration,omitempty" example:"95.5"`
}

// RawRequest is the payload of POST /generate/raw.
type RawRequest struct {
	// example: List five words about cooking.
	Input string `json:"input" example:"List five words about cooking."`
	// Extra context forwarded to the backend.
	// example: beginner level
	ExtraContext string `json:"extra_context,omitempty" example:"beginner level"`
	// example: false
	UseCloud bool `json:"use_cloud,omitempty" example:"false"`
}

// RawResponse is returned by POST /generate/raw.
type RawResponse struct {
	// example: pasta, boil, salt, drain, sauce
	Content string `json:"content" example:"pasta, boil, salt, drain, sauce"`
	// example: local
	Backend string `json:"backend" example:"local"`
}

// PreviewLine is streamed after every generation step.
type PreviewLine struct {
	// example: Step 1: Boil water
	Preview string `json:"preview" example:"Step 1: Boil water\n"`
}

// DoneLine is the final NDJSON line of a successful generation.
type DoneLine struct {
	Done    bool   `json:"done" example:"true"`
	Content string `json:"content"`
	Steps   []Step `json:"steps"`
	// example: 1
	Attempts int `json:"attempts" example:"1"`
	// example: local
	Backend string `json:"backend" example:"local"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// example: text is too long for generation
	Error string `json:"error" example:"text is too long for generation"`
	// Machine-readable error kind.
	// example: input_too_long
	Kind string `json:"kind,omitempty" example:"input_too_long"`
	// example: 413
	Code int `json:"code" example:"413"`
}

// SizingStatus mirrors the last sizing decision.
type SizingStatus struct {
	// example: 812
	ContextLength int `json:"context_length" example:"812"`
	// example: 6
	Threads int `json:"threads" example:"6"`
	// example: 999
	GPULayers int `json:"gpu_layers" example:"999"`
	// example: full
	Tier string `json:"tier" example:"full"`
}

// DeviceStatus describes the probed device.
type DeviceStatus struct {
	// example: 16384
	MemoryMB int64 `json:"memory_mb" example:"16384"`
	// example: true
	Accelerated bool `json:"accelerated" example:"true"`
	// example: true
	Unified bool `json:"unified" example:"true"`
	// example: Metal
	Name string `json:"name,omitempty" example:"Metal"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// example: ready
	State string `json:"state" example:"ready"`
	// example: qwen2.5-1.5b-q4
	Model string `json:"model,omitempty" example:"qwen2.5-1.5b-q4"`
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
	// example: true
	Generating bool `json:"generating" example:"false"`
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// example: 32
	MaxQueueDepth int           `json:"max_queue_depth" example:"32"`
	Device        DeviceStatus  `json:"device"`
	LastSizing    *SizingStatus `json:"last_sizing,omitempty"`
	// example: true
	CloudConfigured bool `json:"cloud_configured" example:"false"`
	// example: 12
	RequestsTotal uint64 `json:"requests_total" example:"12"`
	// example: 2
	RetriesTotal uint64 `json:"retries_total" example:"2"`
	// example: 1
	InterruptsTotal uint64 `json:"interrupts_total" example:"1"`
	LastError       string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// StopResponse is returned by POST /stop and POST /memory-pressure.
type StopResponse struct {
	// Whether a request was in flight and got stopped.
	// example: true
	Stopped bool `json:"stopped" example:"true"`
}
