package main

import (
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"structd/internal/backend"
	"structd/internal/engine"
)

func newSizingCmd(o *options) *cobra.Command {
	var tokens int
	cmd := &cobra.Command{
		Use:     "sizing",
		Short:   "Print the context and offload decision for a prompt size",
		Example: "  structd sizing --tokens 1600",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := engine.NewSizingPolicy(sizingConfig(o.cfg))
			if err != nil {
				return err
			}
			d, err := p.Decide(tokens, probeDevice(backend.New(), o.cfg))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
	cmd.Flags().IntVar(&tokens, "tokens", 0, "Prompt length in tokens")
	_ = cmd.MarkFlagRequired("tokens")
	return cmd
}
