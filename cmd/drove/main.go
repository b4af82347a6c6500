// Command drove load tests HTTP services.
package main

import (
	"os"

	"github.com/wesleyorama2/drove/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
