package main

import (
	"github.com/spf13/cobra"

	"github.com/sandrolain/blogkit/pkg/preview"
	"github.com/sandrolain/blogkit/pkg/publish"
	toolutil "github.com/sandrolain/blogkit/pkg/toolutil"
)

func serveCommand(g *globalFlags) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Preview the generated site over HTTP",
		Long:  "Serve the output directory locally until interrupted. Run the generator first; serve does not build.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			dir := (&publish.Publisher{Root: g.dir, Output: cfg.Output}).OutputDir()
			return preview.ListenAndServe(cmd.Context(), address, dir)
		},
	}

	toolutil.AddAddressFlag(cmd, &address, "127.0.0.1:1313", "Address to listen on")
	return cmd
}
