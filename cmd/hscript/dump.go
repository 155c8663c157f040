package main

import (
	"strings"
)

// DumpCommand prints a YAML summary of a loaded script.
type DumpCommand struct {
	Meta
}

func (c *DumpCommand) Run(args []string) int {
	name, ok := c.parseArgs(c.defaultFlagSet("dump"), args)
	if !ok {
		return 1
	}
	s, _, err := c.loadScript(name)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	data, err := s.Manifest().YAML()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	c.Ui.Output(strings.TrimSuffix(string(data), "\n"))
	return 0
}

func (c *DumpCommand) Help() string {
	helpText := `
Usage: hscript dump [options] [SCRIPT]

  Loads a HorizonScript and prints every directive with its location,
  the user accounts and the requested packages as YAML. Passphrases are
  redacted.

Options:

  -keep-going       Report every parse error instead of stopping at the first.

  -strict           Treat unknown keys as errors.

  -no-color         Disable colorized diagnostics.
`
	return strings.TrimSpace(helpText)
}

func (c *DumpCommand) Synopsis() string {
	return "Print a summary of a script"
}
