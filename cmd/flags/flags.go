// Package flags holds the CLI flag definitions and setup helpers shared by
// the service binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/keyfold/wallet-custody-backend/common"
	"github.com/keyfold/wallet-custody-backend/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var DeviceStoreFlag = &cli.StringFlag{
	Name:  "device-store",
	Value: "file:///var/lib/custody/device",
	Usage: "location URI for device share records (file://, vault://, s3://, mem://)",
}

var ServerStoreFlag = &cli.StringFlag{
	Name:  "server-store",
	Value: "file:///var/lib/custody/server",
	Usage: "location URI for server share records (file://, vault://, s3://, mem://)",
}

var WalletDirFlag = &cli.StringFlag{
	Name:  "wallet-dir",
	Value: "/var/lib/custody",
	Usage: "directory for public wallet records",
}

var KDFVersionFlag = &cli.IntFlag{
	Name:  "kdf-version",
	Value: 2,
	Usage: "PIN KDF for newly sealed shares: 1 for PBKDF2, 2 for Argon2id",
}

var SessionTTLFlag = &cli.DurationFlag{
	Name:  "session-ttl",
	Value: 15 * time.Minute,
	Usage: "lifetime of an authenticated session",
}

var IdentitySecretFlag = &cli.StringFlag{
	Name:     "identity-secret",
	Required: true,
	Usage:    "shared secret for verifying identity proof tokens",
	EnvVars:  []string{"CUSTODY_IDENTITY_SECRET"},
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
