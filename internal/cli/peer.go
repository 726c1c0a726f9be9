package cli

import (
	"fmt"

	"github.com/rudransh-shrivastava/connectsphere/internal/store"
	"github.com/spf13/cobra"
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "manage the remembered peer",
}

var peerLastCmd = &cobra.Command{
	Use:   "last",
	Short: "print the last connected peer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.LastRemote(cmd.Context())
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no peer remembered")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var peerForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "forget the last connected peer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		return st.SetLastRemote(cmd.Context(), "")
	},
}

func init() {
	peerCmd.AddCommand(peerLastCmd)
	peerCmd.AddCommand(peerForgetCmd)
}
