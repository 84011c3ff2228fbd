package manager

import (
	"os"

	"structd/internal/backend"
	"structd/internal/grammar"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	BackendBuilt    bool   `json:"backend_built"`
	LlamaBuilt      bool   `json:"llama_built"`
	ModelPath       string `json:"model_path,omitempty"`
	ModelFound      bool   `json:"model_found"`
	Grammar         string `json:"grammar"`
	GrammarOK       bool   `json:"grammar_ok"`
	CloudConfigured bool   `json:"cloud_configured"`
	Error           string `json:"error,omitempty"`
}

// SanityCheck validates the native library, the selected model file, the
// default grammar and the cloud configuration. It does not mutate state and
// is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{
		BackendBuilt:    backend.Built(),
		LlamaBuilt:      llamaBuilt,
		ModelPath:       m.model.Path,
		Grammar:         m.grammar,
		CloudConfigured: m.cloud.Configured(),
	}
	if _, err := grammar.Load(m.grammar, m.bundleRoot); err != nil {
		r.Error = err.Error()
	} else {
		r.GrammarOK = true
	}
	if m.model.Path == "" {
		if r.Error == "" && !r.CloudConfigured {
			r.Error = "no local model selected and no cloud endpoint configured"
		}
		return r
	}
	if fi, err := os.Stat(m.model.Path); err == nil && !fi.IsDir() {
		r.ModelFound = true
	} else if r.Error == "" {
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Error = "model path is a directory"
		}
	}
	return r
}
