package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/keyfold/wallet-custody-backend/cmd/flags"
	"github.com/keyfold/wallet-custody-backend/custody"
	"github.com/keyfold/wallet-custody-backend/httpserver"
	"github.com/keyfold/wallet-custody-backend/interfaces"
	"github.com/keyfold/wallet-custody-backend/session"
	"github.com/keyfold/wallet-custody-backend/sharestore"
)

var serverFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.DeviceStoreFlag,
	flags.ServerStoreFlag,
	flags.WalletDirFlag,
	flags.KDFVersionFlag,
	flags.SessionTTLFlag,
	flags.IdentitySecretFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "custody-server",
		Usage: "Serve the wallet custody API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			factory := sharestore.NewFactory(logger)
			deviceStore, err := factory.StoreFor(cCtx.String(flags.DeviceStoreFlag.Name), interfaces.SlotDevice)
			if err != nil {
				logger.Error("Failed to create device share store", "err", err)
				return err
			}
			serverStore, err := factory.StoreFor(cCtx.String(flags.ServerStoreFlag.Name), interfaces.SlotServer)
			if err != nil {
				logger.Error("Failed to create server share store", "err", err)
				return err
			}
			walletStore, err := sharestore.NewFileWalletStore(cCtx.String(flags.WalletDirFlag.Name), logger)
			if err != nil {
				logger.Error("Failed to create wallet store", "err", err)
				return err
			}

			recoveries := session.NewRecoveryTracker()

			manager, err := custody.NewManager(custody.Config{
				DeviceStore: deviceStore,
				ServerStore: serverStore,
				Wallets:     walletStore,
				Recovery:    recoveries,
				KDFVersion:  interfaces.KDFVersion(cCtx.Int(flags.KDFVersionFlag.Name)),
				Log:         logger,
			})
			if err != nil {
				logger.Error("Failed to create custody manager", "err", err)
				return err
			}

			provider, err := session.NewHMACProvider([]byte(cCtx.String(flags.IdentitySecretFlag.Name)), 5*time.Minute)
			if err != nil {
				logger.Error("Failed to create identity provider", "err", err)
				return err
			}

			controller := session.NewController(provider, cCtx.Duration(flags.SessionTTLFlag.Name), logger)
			controller.StartSweeper(time.Minute)
			defer controller.Stop()

			handler := httpserver.NewHandler(manager, controller, recoveries, logger)

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server",
				"device_store", deviceStore.Name(),
				"server_store", serverStore.Name(),
			)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
