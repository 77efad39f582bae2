package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"editionmarket/config"
	"editionmarket/core/state"
	"editionmarket/native/assets"
	"editionmarket/native/market"
	"editionmarket/observability/logging"
	"editionmarket/rpc"
	"editionmarket/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("EDITIONMARKET_ENV"))
	logger := logging.Setup("editiond", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	vault, err := parseAddress(cfg.EscrowVaultAddress)
	if err != nil {
		logger.Error("invalid escrow vault address", "err", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "market"))
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)

	ledger := assets.NewLedger()
	ledger.SetState(manager)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetEscrowVault(vault)
	engine.SetAuctionWindows(cfg.AuctionWindowHours)

	if cfg.AdminAddress != "" {
		admin, err := parseAddress(cfg.AdminAddress)
		if err != nil {
			logger.Error("invalid admin address", "err", err)
			os.Exit(1)
		}
		engine.SetAdmin(admin)
	}
	if cfg.FeeCollectorAddress != "" {
		collector, err := parseAddress(cfg.FeeCollectorAddress)
		if err != nil {
			logger.Error("invalid fee collector address", "err", err)
			os.Exit(1)
		}
		engine.SetFeeCollector(collector)
	}

	if _, ok, err := manager.MarketMaxEditionsGet(); err != nil {
		logger.Error("failed to read edition cap", "err", err)
		os.Exit(1)
	} else if !ok {
		if err := manager.MarketMaxEditionsPut(cfg.MaxEditions); err != nil {
			logger.Error("failed to seed edition cap", "err", err)
			os.Exit(1)
		}
	}

	server := rpc.NewServer(engine, ledger, logger)
	logger.Info("starting editiond", "rpc", cfg.RPCAddress, "dataDir", cfg.DataDir)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "err", err)
		os.Exit(1)
	}
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	if !ethcommon.IsHexAddress(value) {
		return addr, fmt.Errorf("not a hex address: %q", value)
	}
	copy(addr[:], ethcommon.HexToAddress(value).Bytes())
	return addr, nil
}
