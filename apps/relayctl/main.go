package main

import (
	"os"

	"github.com/mahaj/chatrelay/pkg/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		l := log.L()
		l.Error().Err(err).Msg("relayctl failed")
		os.Exit(1)
	}
}
