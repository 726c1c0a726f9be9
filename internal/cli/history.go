package cli

import (
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/connectsphere/internal/store"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "list recent messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be positive, got %d", historyLimit)
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		h, ok := st.(store.History)
		if !ok {
			return errors.New("history is only kept by the sqlite store")
		}
		msgs, err := h.RecentMessages(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, m := range msgs {
			arrow := "->"
			if m.Direction == store.Incoming {
				arrow = "<-"
			}
			fmt.Fprintf(out, "%s %s %s %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"), arrow, m.Remote, m.Text)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of messages to show")
}
