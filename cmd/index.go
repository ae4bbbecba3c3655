package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuilds the search corpus from stored results",
		Long: `Embeds every stored result field by field and replaces the search corpus.
Only useful with search.backend=postgres; the memory corpus lives only as
long as the process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := appInstance.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.Logger().Info("index rebuilt", zap.Int("documents", n))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents\n", n)
			return err
		},
	}
}
