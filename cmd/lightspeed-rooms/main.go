package main

import (
	"net/http"
	"os"
	"os/signal"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-rooms/api"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/room"
	"github.com/tcriess/lightspeed-rooms/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	store, err := persistence.NewStateStore(globalConfig)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	hub := ws.NewHub(globalConfig)
	go hub.Run()

	rooms := room.NewHandler(store, globalConfig, hub)
	server := api.NewServer(rooms, hub, globalConfig)

	stats := cron.New()
	_, err = stats.AddFunc("@every 1m", func() {
		ids, err := store.ListRooms()
		if err != nil {
			globals.AppLogger.Error("could not list rooms", "error", err)
			return
		}
		globals.AppLogger.Info("stats", "rooms", len(ids), "clients", hub.NoClients())
	})
	if err != nil {
		panic(err)
	}
	stats.Start()
	defer stats.Stop()

	go func() {
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		store.Close()
		os.Exit(0)
	}()

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, server.Router())
	} else {
		err = http.ListenAndServe(*addr, server.Router())
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}
