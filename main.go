package main

import (
	"fmt"
	"os"

	"github.com/min-tian-thomas/deployment/bootstrap"
	"github.com/min-tian-thomas/deployment/util"

	"github.com/akamensky/argparse"
)

func main() {
	parser := argparse.NewParser("deployctl", "Deployment configuration generator")
	configFilename := parser.String("c", "config", &argparse.Options{
		Default: util.GetenvDefault("DEPLOYCTL_CONFIG", "deployctl.conf"),
		Help:    "Configuration file path",
	})

	generateCmd := parser.NewCommand("generate", "Validate everything and write rendered configs and binary symlinks")
	generateDc := generateCmd.String("", "dc", &argparse.Options{Help: "Only write this datacenter"})
	generateHost := generateCmd.String("", "host", &argparse.Options{Help: "Only write this host"})
	generateApp := generateCmd.String("", "app", &argparse.Options{Help: "Only write this application"})

	validateCmd := parser.NewCommand("validate", "Run every stage without writing output")
	binariesCmd := parser.NewCommand("binaries", "Reconcile the binary directory tree against required_versions")
	annotateCmd := parser.NewCommand("annotate", "Refresh numa and ip comments in deployment plan files")

	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(1)
	}

	switch {
	case generateCmd.Happened():
		bootstrap.Generate(*configFilename, *generateDc, *generateHost, *generateApp)
	case validateCmd.Happened():
		bootstrap.Validate(*configFilename)
	case binariesCmd.Happened():
		bootstrap.Binaries(*configFilename)
	case annotateCmd.Happened():
		bootstrap.Annotate(*configFilename)
	}
}
