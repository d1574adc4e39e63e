// Command scenecast renders scene scripts to video on the local machine,
// without the API, queue or database.
package main

import (
	"os"

	"scenecast/cmd/scenecast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
