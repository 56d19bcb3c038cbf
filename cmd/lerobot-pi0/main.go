package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Setup      SetupCommand      `command:"setup" description:"Scan for the follower arm and calibrate it"`
	Run        RunCommand        `command:"run" description:"Execute one or more policy trajectories"`
	Continuous ContinuousCommand `command:"continuous" alias:"cont" description:"Continuously execute trajectories at a fixed rate"`
	Preview    PreviewCommand    `command:"preview" description:"Show camera frames without running inference"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "LeRobot-Pi0 - Drive an SO-100/SO-101 follower arm from a remote pi0 policy server"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
