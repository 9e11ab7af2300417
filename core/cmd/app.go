// Package cmd wires the pipeline together behind the command line interface.
package cmd

import (
	"github.com/urfave/cli"

	"github.com/abchrisxyz/ergowatch/core/config"
	"github.com/abchrisxyz/ergowatch/core/store/migrate"
)

// NewApp returns the ergowatch CLI application.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "ergowatch"
	app.Usage = "Ergo blockchain indexer"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to config file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "node",
			Usage:  "follow the chain and run the indexing workers",
			Action: runNode,
		},
		{
			Name:   "migrate",
			Usage:  "apply core schema migrations",
			Action: runMigrate,
		},
	}
	return app
}

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	return NewApp().Run(args)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.GlobalString("config"))
}

func runMigrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, closeDB, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeDB()
	return migrate.Migrate(db)
}
