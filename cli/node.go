package cli

/*
 * Licensed under LGPL-3.0.
 *
 * You can get a copy of the LGPL-3.0 License at
 *
 * https://www.gnu.org/licenses/lgpl-3.0.en.html
 *
 * @wcgcyx - https://github.com/wcgcyx
 */

import (
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	logging "github.com/ipfs/go-log"
	"github.com/urfave/cli/v2"
	"github.com/wcgcyx/callsim/backend"
	"github.com/wcgcyx/callsim/blockchain"
	"github.com/wcgcyx/callsim/config"
	"github.com/wcgcyx/callsim/executor"
	"github.com/wcgcyx/callsim/node"
	"github.com/wcgcyx/callsim/rpc"
	"github.com/wcgcyx/callsim/statestore"
	"github.com/wcgcyx/callsim/worldstate"
)

// Logger
var log = logging.Logger("cli")

func runNode(c *cli.Context) error {
	// Load config
	conf, err := config.NewConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("path") {
		log.Infof("Override path to be %v", c.String("path"))
		conf.Path = c.String("path")
	}
	if c.IsSet("rpc-host") {
		log.Infof("Override rpc-host to be %v", c.String("rpc-host"))
		conf.RPCHost = c.String("rpc-host")
	}
	if c.IsSet("rpc-port") {
		log.Infof("Override rpc-port to be %v", c.Int("rpc-port"))
		conf.RPCPort = uint64(c.Int("rpc-port"))
	}
	if c.IsSet("gas-cap") {
		log.Infof("Override gas-cap to be %v", c.Uint64("gas-cap"))
		conf.RPCGasCap = c.Uint64("gas-cap")
	}
	if err = os.MkdirAll(conf.Path, os.ModePerm); err != nil {
		return err
	}

	// Read chain, a datastore stays on the chain it is created with
	chain := conf.Chain
	if c.IsSet("chain") {
		chain = c.String("chain")
	}
	if contents, err := os.ReadFile(filepath.Join(conf.Path, "genesis")); err == nil {
		if string(contents) != chain {
			log.Infof("Ignored chain option %v, datastore is on %v", chain, string(contents))
		}
		chain = string(contents)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	genesis, err := node.NewGenesis(chain, conf.DevAlloc)
	if err != nil {
		return err
	}
	log.Infof("Use chain config for %v", chain)
	if err = os.WriteFile(filepath.Join(conf.Path, "genesis"), []byte(chain), os.ModePerm); err != nil {
		return err
	}

	// Create blockchain
	log.Infof("Start blockchain...")
	bc, err := blockchain.NewBlockchainImpl(c.Context, blockchain.Opts{
		Path:         filepath.Join(conf.Path, "chaindata"),
		ReadTimeout:  conf.DSTimeout,
		WriteTimeout: conf.DSTimeout,
	}, genesis)
	if err != nil {
		return err
	}
	defer bc.Shutdown()
	log.Infof("Blockchain started.")

	// Create statestore
	log.Infof("Start statestore...")
	sstore, err := statestore.NewStateStoreImpl(c.Context, statestore.Opts{
		Path:         filepath.Join(conf.Path, "statedata"),
		GCPeriod:     conf.StateStoreGCPeriod,
		ReadTimeout:  conf.DSTimeout,
		WriteTimeout: conf.DSTimeout,
	}, genesis, genesis.ToBlock().Hash())
	if err != nil {
		return err
	}
	defer sstore.Shutdown()
	log.Infof("Statestore started.")

	// Create world state
	log.Infof("Start worldstate archive...")
	archive, err := worldstate.NewArchiveImpl(worldstate.Opts{
		MaxLayerToRetain: conf.WorldStateMaxLayerToRetain,
	}, sstore)
	if err != nil {
		return err
	}
	log.Infof("Worldstate archive started.")

	// Create executor and backend
	exec := executor.NewExecutor(executor.Opts{
		GasCap:        conf.RPCGasCap,
		MinGasPercent: conf.EVMMinGasPercent,
	})
	be, err := backend.NewBackendImpl(c.Context, backend.Opts{}, genesis.Config, exec, bc, sstore, archive)
	if err != nil {
		return err
	}
	defer be.Shutdown()

	// Create node
	node, err := node.NewNode(node.Opts{
		SealPeriod: conf.SealPeriod,
	}, be)
	if err != nil {
		return err
	}

	// Create API server
	log.Infof("Start API Server...")
	apiServer, err := rpc.NewServer(rpc.Opts{
		Host:            conf.RPCHost,
		Port:            conf.RPCPort,
		CORSOrigins:     conf.RPCCORSOrigins,
		RPCGasCap:       conf.RPCGasCap,
		RPCEVMTimeout:   conf.RPCEVMTimeout,
		RPCTraceTimeout: conf.RPCTraceTimeout,
	}, node)
	if err != nil {
		return err
	}
	log.Infof("Start serving at %v", apiServer.Addr())

	// Start mainloop
	go node.Mainloop()

	// Configure graceful shutdown.
	cc := make(chan os.Signal, 1)
	signal.Notify(cc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	select {
	case <-cc:
	case err = <-apiServer.Err():
		log.Errorf("API server stopped: %v", err)
	}
	log.Infof("Graceful shutdown...")
	apiServer.Shutdown()
	node.Shutdown()
	return err
}
