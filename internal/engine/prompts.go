package engine

import (
	"fmt"
	"strings"

	"structd/internal/grammar"
)

// ChatTemplate selects how system and user turns are framed.
type ChatTemplate string

const (
	TemplatePlain  ChatTemplate = "plain"
	TemplateChatML ChatTemplate = "chatml"
	TemplateInst   ChatTemplate = "inst"
)

// ParseChatTemplate maps a config string to a template; empty means plain.
func ParseChatTemplate(s string) (ChatTemplate, error) {
	switch t := ChatTemplate(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TemplatePlain, nil
	case TemplatePlain, TemplateChatML, TemplateInst:
		return t, nil
	default:
		return "", fmt.Errorf("unknown chat template %q", s)
	}
}

var longPhrasings = []string{
	"Split the following text into an ordered list of steps. Give every step a short name and a detailed description of what happens in it.",
	"Read the text below and rewrite it as a sequence of steps. Each step needs a step name and a full step description.",
	"Turn this text into structured steps in JSON. Keep the original order and describe each step thoroughly.",
}

var shortPhrasings = []string{
	"Split the following text into an ordered list of steps. Give every step a short name and a one-line short description.",
	"Read the text below and list its steps in order. Each step needs a step name and a brief short description.",
	"Turn this text into structured steps in JSON. Keep the original order and keep each description to a few words.",
}

var clipPhrasings = []string{
	"The following are timed subtitles. Group them into ordered steps. For each step give a short name, a short description and the start time in seconds of its first subtitle.",
	"Read these subtitles and split them into steps. Every step needs a name, a brief description and the start offset in seconds.",
	"Convert the subtitles below into JSON steps with start offsets in seconds, keeping the original order.",
}

// Phrasings returns the ordered prompt variants for a grammar shape.
func Phrasings(v grammar.Variant) []string {
	switch v {
	case grammar.VariantShort:
		return shortPhrasings
	case grammar.VariantClip:
		return clipPhrasings
	default:
		return longPhrasings
	}
}

// PromptSet renders the variants of one request.
type PromptSet struct {
	System    string
	Template  ChatTemplate
	Phrasings []string
}

// Len is the number of distinct variants.
func (p PromptSet) Len() int { return len(p.Phrasings) }

// Render returns variant i (wrapping) applied to input.
func (p PromptSet) Render(i int, input string) string {
	user := input
	if len(p.Phrasings) > 0 {
		user = p.Phrasings[i%len(p.Phrasings)] + "\n\n" + input
	}
	return renderChat(p.Template, p.System, user)
}

func renderChat(t ChatTemplate, system, user string) string {
	var b strings.Builder
	switch t {
	case TemplateChatML:
		if system != "" {
			b.WriteString("<|im_start|>system\n" + system + "<|im_end|>\n")
		}
		b.WriteString("<|im_start|>user\n" + user + "<|im_end|>\n<|im_start|>assistant\n")
	case TemplateInst:
		b.WriteString("[INST] ")
		if system != "" {
			b.WriteString(system + "\n\n")
		}
		b.WriteString(user + " [/INST]")
	default:
		if system != "" {
			b.WriteString(system + "\n\n")
		}
		b.WriteString(user + "\n")
	}
	return b.String()
}
