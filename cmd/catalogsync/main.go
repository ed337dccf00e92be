package main

import (
	"fmt"
	"os"

	"github.com/erp/catalogsync/internal/interfaces/cli"
)

//	@title			Catalog Sync API
//	@version		1.0
//	@description	Reconciles the local product catalog against the remote catalog.

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
