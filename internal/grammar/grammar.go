// Package grammar loads and checks GBNF grammars that constrain step output.
package grammar

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"structd/internal/common/fsutil"
)

// RootRule is the start symbol every grammar must define.
const RootRule = "root"

// BundlePrefix marks a reference relative to the configured bundle root.
const BundlePrefix = "bundle://"

// Variant is the shape of step record a grammar produces.
type Variant int

const (
	// VariantLong records carry step_description.
	VariantLong Variant = iota
	// VariantShort records carry step_short_description.
	VariantShort
	// VariantClip records are short records with a start offset.
	VariantClip
)

func (v Variant) String() string {
	switch v {
	case VariantShort:
		return "short"
	case VariantClip:
		return "clip"
	default:
		return "long"
	}
}

// ErrEmpty is returned for an empty grammar text.
var ErrEmpty = errors.New("grammar is empty")

// SyntaxError reports a malformed rule line.
type SyntaxError struct {
	Line int
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("grammar line %d: %s: %q", e.Line, e.Msg, e.Text)
}

//go:embed builtin/*.gbnf
var builtinFS embed.FS

var ruleRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_-]*)\s*::=\s*(.*)$`)

// Grammar is a parsed, validated GBNF document.
type Grammar struct {
	name    string
	text    string
	rules   []string
	variant Variant
}

// Parse validates text and returns a Grammar. Rule lines start at column 0
// as "name ::= body"; indented lines continue the previous rule and lines
// starting with '#' are comments.
func Parse(text string) (*Grammar, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}
	var (
		rules   []string
		hasRoot bool
		open    bool
	)
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			continue
		case line[0] == ' ' || line[0] == '\t' || strings.HasPrefix(trimmed, "|"):
			if !open {
				return nil, &SyntaxError{Line: n, Text: line, Msg: "continuation without a rule"}
			}
			continue
		}
		m := ruleRe.FindStringSubmatch(line)
		if m == nil {
			return nil, &SyntaxError{Line: n, Text: line, Msg: "expected 'name ::= body'"}
		}
		// the body may continue on indented lines
		open = true
		if m[1] == RootRule {
			hasRoot = true
		}
		rules = append(rules, m[1])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan grammar: %w", err)
	}
	if !hasRoot {
		return nil, &SyntaxError{Msg: "missing rule", Text: RootRule}
	}
	return &Grammar{text: text, rules: rules, variant: detectVariant(text)}, nil
}

// Text returns the GBNF source.
func (g *Grammar) Text() string { return g.text }

// Name is the builtin name or the file the grammar came from, if any.
func (g *Grammar) Name() string { return g.name }

// Root returns the start symbol.
func (g *Grammar) Root() string { return RootRule }

// Rules lists rule names in definition order.
func (g *Grammar) Rules() []string { return append([]string(nil), g.rules...) }

// Variant returns the record shape the grammar produces.
func (g *Grammar) Variant() Variant { return g.variant }

// LongForm reports whether records carry a long description.
func (g *Grammar) LongForm() bool { return g.variant == VariantLong }

func detectVariant(text string) Variant {
	hasShort := strings.Contains(text, "step_short_description")
	switch {
	case hasShort && strings.Contains(text, `\"start\"`):
		return VariantClip
	case hasShort && !strings.Contains(text, "step_description"):
		return VariantShort
	case strings.Contains(text, "step_description"):
		return VariantLong
	case hasShort:
		return VariantShort
	default:
		return VariantLong
	}
}

// Builtin returns an embedded grammar by name.
func Builtin(name string) (*Grammar, error) {
	b, err := builtinFS.ReadFile("builtin/" + name + ".gbnf")
	if err != nil {
		return nil, fmt.Errorf("unknown builtin grammar %q", name)
	}
	g, err := Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("builtin %s: %w", name, err)
	}
	g.name = name
	return g, nil
}

// Builtins lists the embedded grammar names, sorted.
func Builtins() []string {
	entries, _ := builtinFS.ReadDir("builtin")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".gbnf"))
	}
	sort.Strings(out)
	return out
}

// Load resolves ref and parses it. ref may be a builtin name, a path
// (with optional leading '~'), a bundle:// reference resolved against
// bundleRoot, or inline GBNF text. Resolution happens on every call so a
// relocated bundle is picked up.
func Load(ref, bundleRoot string) (*Grammar, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrEmpty
	}
	if strings.Contains(ref, "::=") {
		return Parse(ref)
	}
	if rel, ok := strings.CutPrefix(ref, BundlePrefix); ok {
		if bundleRoot == "" {
			return nil, fmt.Errorf("grammar %q: no bundle root configured", ref)
		}
		root, err := fsutil.ExpandHome(bundleRoot)
		if err != nil {
			return nil, err
		}
		p, err := fsutil.ResolveUnder(root, rel)
		if err != nil {
			return nil, fmt.Errorf("grammar %q: %w", ref, err)
		}
		return loadFile(p)
	}
	if !strings.ContainsAny(ref, `/\~.`) {
		return Builtin(ref)
	}
	p, err := fsutil.ExpandHome(ref)
	if err != nil {
		return nil, err
	}
	return loadFile(p)
}

func loadFile(path string) (*Grammar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grammar: %w", err)
	}
	g, err := Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	g.name = path
	return g, nil
}
