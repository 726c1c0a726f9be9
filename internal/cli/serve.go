package cli

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/rudransh-shrivastava/connectsphere/internal/discovery"
	"github.com/rudransh-shrivastava/connectsphere/internal/signaling"
	"github.com/spf13/cobra"
)

var (
	serveListen string
	serveRedis  string
	serveMDNS   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the signaling service",
	Long:  `run the signaling service that assigns peer IDs and relays connection offers`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Signaling.Listen = serveListen
		}
		if cmd.Flags().Changed("redis") {
			cfg.Signaling.RedisAddr = serveRedis
		}
		if cmd.Flags().Changed("mdns") {
			cfg.Signaling.MDNS = serveMDNS
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		var broker signaling.Broker
		if cfg.Signaling.RedisAddr != "" {
			rb, err := signaling.NewRedisBroker(ctx, cfg.Signaling.RedisAddr, log)
			if err != nil {
				return err
			}
			broker = rb
			log.Infof("Relaying signals through redis at %s", cfg.Signaling.RedisAddr)
		}

		srv, err := signaling.NewServer(signaling.Config{
			Addr:   cfg.Signaling.Listen,
			Logger: log,
			Broker: broker,
		})
		if err != nil {
			if broker != nil {
				_ = broker.Close()
			}
			return err
		}

		if cfg.Signaling.MDNS {
			_, portStr, err := net.SplitHostPort(srv.Addr())
			if err != nil {
				return err
			}
			port, _ := strconv.Atoi(portStr)
			shutdown, err := discovery.Advertise(cfg.Signaling.MDNSService, port, log)
			if err != nil {
				log.Warnf("mDNS advertising disabled: %v", err)
			} else {
				defer shutdown()
			}
		}

		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on")
	serveCmd.Flags().StringVar(&serveRedis, "redis", "", "redis address for relaying between instances")
	serveCmd.Flags().BoolVar(&serveMDNS, "mdns", false, "advertise the service over mDNS")
}
