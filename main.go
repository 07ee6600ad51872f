package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anvil/engine"
)

func main() {
	configPath := "anvil.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	e, err := engine.New(configPath)
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		_ = e.Shutdown()
	}()

	if err := e.Run(); err != nil {
		panic(err)
	}
}
