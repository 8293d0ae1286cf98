package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/persistence"
)

// A very simple CLI tool for the administration of lightspeed-rooms state stores.

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
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

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms or room state",
		Long:  `show is for printing room information from the configured state store.`,
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists the ids of all rooms in the state store.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			ids, err := store.ListRooms()
			if err != nil {
				globals.AppLogger.Error("could not list rooms", "error", err)
				return
			}
			r, err := json.Marshal(ids)
			if err != nil {
				globals.AppLogger.Error("could not marshal room ids", "error", err)
				return
			}
			fmt.Println(string(r))
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Show room",
		Long:  `show room prints the full state snapshot of the room with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, err := store.GetRoom(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			r, err := json.Marshal(st)
			if err != nil {
				globals.AppLogger.Error("could not marshal room", "error", err)
				return
			}
			fmt.Println(string(r))
		},
	}
	var cmdShowHistory = &cobra.Command{
		Use:   "history [room id]",
		Short: "Show timeline history",
		Long:  `show history prints the most recent timeline events of the room with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var t time.Time
			events, err := store.EventHistory(args[0], t, time.Now().Add(time.Minute), 0, globalConfig.HistoryConfig.PageSize)
			if err != nil {
				globals.AppLogger.Error("could not get history", "error", err)
				return
			}
			r, err := json.Marshal(events)
			if err != nil {
				globals.AppLogger.Error("could not marshal events", "error", err)
				return
			}
			fmt.Println(string(r))
		},
	}
	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "Delete a room",
		Long:  `delete is for removing entities from the state store.`,
	}
	var cmdDeleteRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Delete room",
		Long:  `delete room removes the room with the given id including its timeline.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := store.DeleteRoom(args[0]); err != nil {
				globals.AppLogger.Error("could not delete room", "error", err)
				return
			}
			fmt.Println("deleted " + args[0])
		},
	}

	var rootCmd = &cobra.Command{Use: "lightspeed-rooms-admin"}
	rootCmd.AddCommand(cmdShow, cmdDelete)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowHistory)
	cmdDelete.AddCommand(cmdDeleteRoom)
	if err := rootCmd.Execute(); err != nil {
		globals.AppLogger.Error("command failed", "error", err)
	}
}
