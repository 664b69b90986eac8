package main

import (
	"os"

	"github.com/Sysinternals/ProcMon-for-Linux/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
