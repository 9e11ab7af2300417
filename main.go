package main

import (
	"fmt"
	"os"

	"github.com/abchrisxyz/ergowatch/core/cmd"
	"github.com/abchrisxyz/ergowatch/core/logger"
)

func main() {
	defer logger.Sync()
	if err := cmd.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
