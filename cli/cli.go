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
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/wcgcyx/callsim/version"
)

// NewCLI creates a CLI app.
func NewCLI() *cli.App {
	app := &cli.App{
		Name:      "callsim",
		HelpName:  "callsim",
		Usage:     "An Ethereum call simulation and tracing node",
		UsageText: "callsim [global options] command [arguments...]",
		Version:   version.Version,
		Description: "\n\t This is an Ethereum JSON-RPC node that executes transactions\n" +
			"\t against a local ledger and answers eth_call, eth_estimateGas,\n" +
			"\t debug_traceCall and debug_traceTransaction.\n\n" +
			"\t Calls can override account state and block fields without\n" +
			"\t touching the ledger.\n",
		Authors: []*cli.Author{
			{
				Name:  "wcgcyx",
				Email: "wcgcyx@gmail.com",
			},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:        "start",
			Usage:       "start the callsim node",
			Description: "Start the callsim node and its rpc service",
			ArgsUsage:   " ",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "config",
					Value: "",
					Usage: "specify config file",
				},
				&cli.PathFlag{
					Name:  "path",
					Value: "",
					Usage: "specify datastore path",
				},
				&cli.StringFlag{
					Name:  "rpc-host",
					Value: "localhost",
					Usage: "specify eth api rpc service host",
				},
				&cli.IntFlag{
					Name:  "rpc-port",
					Value: 8545,
					Usage: "specify eth api rpc service port",
				},
				&cli.Uint64Flag{
					Name:  "gas-cap",
					Value: 25000000,
					Usage: "specify the gas cap of calls and estimations",
				},
				&cli.StringFlag{
					Name:  "chain",
					Value: "dev",
					Usage: "specify the chain [dev,mainnet,sepolia,holesky]",
				},
			},
			Action: func(ctx *cli.Context) error {
				return runNode(ctx)
			},
		},
		{
			Name:        "version",
			Usage:       "get version",
			Description: "Get the version",
			ArgsUsage:   " ",
			Action: func(c *cli.Context) error {
				fmt.Println("Version: ", version.Version)
				return nil
			},
		},
	}
	return app
}
