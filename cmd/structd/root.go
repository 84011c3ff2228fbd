package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"structd/internal/config"
)

// options collects persistent flags and the config they resolve to.
type options struct {
	configPath string
	logLevel   string
	logFormat  string

	addr       string
	modelsDir  string
	model      string
	grammar    string
	rawAdapter string
	cors       string

	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "structd",
		Short:         "Structured step generation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", os.Getenv("STRUCTD_CONFIG"), "Config file (.yaml, .json or .toml); defaults to STRUCTD_CONFIG")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	pf.StringVar(&o.logFormat, "log-format", "console", "Log output: console|json")
	pf.StringVar(&o.modelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	pf.StringVar(&o.model, "model", "", "Model id, file name or path to use for local generation")
	pf.StringVar(&o.grammar, "grammar", "", "Default grammar: builtin name, path, bundle:// reference or inline GBNF")
	pf.StringVar(&o.rawAdapter, "raw-adapter", "", "Free-text runtime: engine|llama")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return o.resolve(cmd)
	}

	root.AddCommand(newServeCmd(o), newGenerateCmd(o), newSizingCmd(o), newCompletionCmd(root))
	return root
}

// resolve loads the config file, applies flags that were set explicitly and
// builds the process logger.
func (o *options) resolve(cmd *cobra.Command) error {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("models-dir") {
		cfg.ModelsDir = o.modelsDir
	}
	if flags.Changed("model") {
		cfg.Model = o.model
	}
	if flags.Changed("grammar") {
		cfg.Grammar = o.grammar
	}
	if flags.Changed("raw-adapter") {
		cfg.RawAdapter = o.rawAdapter
	}
	if f := flags.Lookup("addr"); f != nil && f.Changed {
		cfg.Addr = o.addr
	} else if v := os.Getenv("STRUCTD_ADDR"); v != "" && cfg.Addr == "" {
		cfg.Addr = v
	}
	if f := flags.Lookup("cors-origins"); f != nil && f.Changed {
		cfg.CORS.Enabled = true
		cfg.CORS.Origins = splitCSV(o.cors)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	o.cfg = cfg

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	var out = zerolog.New(os.Stderr)
	if o.logFormat == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	o.log = out.Level(lvl).With().Timestamp().Logger()
	return nil
}

func newCompletionCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion script",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(os.Stdout)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell %q", args[0])
			}
		},
	}
}

// splitCSV splits a comma separated flag value, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
