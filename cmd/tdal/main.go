// Command tdal validates schemas, bootstraps databases and runs query documents.
package main

import (
	"os"

	"github.com/satishbabariya/tdal/cmd/tdal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
