package main

import (
	"github.com/jessevdk/go-flags"
)

// Options are the command-line overrides. Zero values leave the environment
// configuration untouched; a port of -1 disables that listener.
type Options struct {
	HTTPPort  int    `long:"http-port" description:"HTTP listen port (-1 disables)"`
	HTTPSPort int    `long:"https-port" description:"HTTPS listen port (-1 disables)"`
	SSHPort   int    `long:"ssh-port" description:"SSH listen port (-1 disables)"`
	DNSPort   int    `long:"dns-port" description:"DNS listen port (-1 disables)"`
	ConfigDir string `short:"c" long:"config-dir" description:"directory with models.yaml, deployments.yaml and routing.yaml"`
	Personas  string `short:"p" long:"personas" description:"persona catalog YAML file"`
	HighPort  bool   `long:"high-port" description:"use non-privileged development ports"`
	Debug     bool   `short:"d" long:"debug" description:"verbose logging"`
}

func parseOptions(args []string) (*Options, error) {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return opts, nil
}
