package cmd

import (
	"encoding/base64"
	"fmt"

	"github.com/example/octiv-sniper/internal/seal"
	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate an OCTIV_SECRET value (base64) for sealing tokens at rest",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "export OCTIV_SECRET=%s\n", base64.StdEncoding.EncodeToString(seal.GenerateSecret()))
			return nil
		},
	}
}
