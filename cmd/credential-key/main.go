package main

import (
	"flag"
	"os"

	"github.com/rowanvale/sheetsync/internal/platform/config"
	"github.com/rowanvale/sheetsync/internal/tools/credentialkey"
)

func main() {
	cfg, err := credentialkey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := credentialkey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate key: %v", err)
	}
}
