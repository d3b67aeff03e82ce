package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"

	"dlist/broker"
	"dlist/client"
	"dlist/config"
	"dlist/server"
)

func main() {
	configFilePathFlag := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()

	if configFilePathFlag == nil {
		panic("Specify config file path with --config flag")
	}

	cfg, err := config.LoadConfig(*configFilePathFlag)
	if err != nil {
		panic(err)
	}

	logger := log15.New("service", "main")
	logger.SetHandler(log15.LvlFilterHandler(cfg.Level(), log15.StdoutHandler))

	conn, serverCh, err := broker.Dial(cfg.AmqpUrl)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	clientsCh, err := conn.Channel()
	if err != nil {
		panic(err)
	}

	serverR, err := server.NewServer(cfg, serverCh)
	if err != nil {
		panic(err)
	}
	defer serverR.Stop()

	serverDone := make(chan error, 1)
	go func() { serverDone <- serverR.StartServer() }()

	clientsManager, err := client.NewClientsManager(cfg, clientsCh)
	if err != nil {
		panic(err)
	}
	defer clientsManager.Cancel()

	go func() {
		if err := clientsManager.ListenReplies(nil); err != nil {
			logger.Error("Stopped listening replies", "error", err)
		}
	}()

	if err := clientsManager.ListenClientActions(); err != nil {
		panic(err)
	}

	logger.Info("Input finished, waiting for the server")
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverDone:
		if err != nil {
			logger.Error("Server failed", "error", err)
		}
	case sig := <-signals:
		logger.Info("Stopping", "signal", sig)
	}
}
