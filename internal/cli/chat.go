package cli

import (
	"os"

	"github.com/rudransh-shrivastava/connectsphere/internal/node"
	"github.com/rudransh-shrivastava/connectsphere/internal/store"
	"github.com/spf13/cobra"
)

var chatPeer string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "start a conversation",
	Long:  `register with the signaling service and chat with a peer from the terminal`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		tr, offline := node.NewWebRTCTransport(ctx, cfg, log)
		defer tr.Close()

		sessionCfg := cfg.Session
		sessionCfg.Logger = log

		n, err := node.New(node.Options{
			Transport:   tr,
			Session:     sessionCfg,
			Store:       st,
			Offline:     offline,
			Peer:        chatPeer,
			AutoConnect: cfg.AutoConnect,
			Spinner:     true,
			Logger:      log,
		})
		if err != nil {
			return err
		}
		return n.Run(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatPeer, "peer", "p", "", "peer ID to connect to on start")
}
