package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/api"
	"github.com/mmguero-android/timelimit-android-sub001/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "seed":
		runAdminSeed(args[1:])
	case "devices":
		runAdminDevices(args[1:])
	case "remove-device":
		runAdminRemoveDevice(args[1:])
	case "resync":
		runAdminResync(args[1:])
	case "message":
		runAdminMessage(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: tlsync-server admin <command> [flags]

Commands:
  seed           Create or update a family from a JSON file
  devices        List the devices of a family
  remove-device  Remove a device from its family
  resync         Ask a device to drop its version tokens
  message        Set the message delivered to a family`)
}

const dbFlagHelp = "path to server.db (default: from TLSYNC_SERVER_DB_PATH or ./data/server.db)"

func openDB(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		cfg := api.LoadConfig()
		dbPath = cfg.ServerDBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fatalf("open database: %v", err)
	}
	return store
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func requireFlag(fs *flag.FlagSet, name, value string) {
	if value == "" {
		fmt.Fprintf(os.Stderr, "error: --%s is required\n", name)
		fs.Usage()
		os.Exit(1)
	}
}

func runAdminSeed(args []string) {
	fs := flag.NewFlagSet("admin seed", flag.ExitOnError)
	file := fs.String("file", "", "family seed JSON file")
	dataDir := fs.String("data-dir", "", "family data directory (default: from TLSYNC_FAMILY_DATA_DIR or ./data/families)")
	dbPath := fs.String("db", "", dbFlagHelp)
	fs.Parse(args)
	requireFlag(fs, "file", *file)

	data, err := os.ReadFile(*file)
	if err != nil {
		fatalf("read seed: %v", err)
	}
	var seed api.FamilySeed
	if err := json.Unmarshal(data, &seed); err != nil {
		fatalf("parse seed: %v", err)
	}

	if *dataDir == "" {
		*dataDir = api.LoadConfig().FamilyDataDir
	}
	store := openDB(*dbPath)
	defer store.Close()
	stores := api.NewFamilyStorePool(*dataDir)
	defer stores.CloseAll()

	if err := api.SeedFamily(context.Background(), store, stores, seed); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("seeded family %s (%d users, %d categories)\n", seed.FamilyID, len(seed.Users), len(seed.Categories))
}

func runAdminDevices(args []string) {
	fs := flag.NewFlagSet("admin devices", flag.ExitOnError)
	family := fs.String("family", "", "family id")
	dbPath := fs.String("db", "", dbFlagHelp)
	fs.Parse(args)
	requireFlag(fs, "family", *family)

	store := openDB(*dbPath)
	defer store.Close()

	devices, err := store.ListDevices(*family)
	if err != nil {
		fatalf("%v", err)
	}
	for _, d := range devices {
		state := "active"
		if d.Removed() {
			state = "removed"
		}
		seen := "never"
		if d.LastSeenAt != nil {
			seen = d.LastSeenAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-8s %-20s token=%s... last_seen=%s\n", d.ID, state, d.Name, d.TokenPrefix, seen)
	}
}

func runAdminRemoveDevice(args []string) {
	fs := flag.NewFlagSet("admin remove-device", flag.ExitOnError)
	device := fs.String("device", "", "device id")
	dbPath := fs.String("db", "", dbFlagHelp)
	fs.Parse(args)
	requireFlag(fs, "device", *device)

	store := openDB(*dbPath)
	defer store.Close()

	if err := store.RemoveDevice(*device); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("removed device %s\n", *device)
}

func runAdminResync(args []string) {
	fs := flag.NewFlagSet("admin resync", flag.ExitOnError)
	device := fs.String("device", "", "device id")
	dbPath := fs.String("db", "", dbFlagHelp)
	fs.Parse(args)
	requireFlag(fs, "device", *device)

	store := openDB(*dbPath)
	defer store.Close()

	if err := store.MarkFullResync(*device); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("device %s will resync on its next push\n", *device)
}

func runAdminMessage(args []string) {
	fs := flag.NewFlagSet("admin message", flag.ExitOnError)
	family := fs.String("family", "", "family id")
	text := fs.String("text", "", "message text (empty clears it)")
	dbPath := fs.String("db", "", dbFlagHelp)
	fs.Parse(args)
	requireFlag(fs, "family", *family)

	store := openDB(*dbPath)
	defer store.Close()

	if err := store.SetFamilyMessage(*family, *text); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("message of %s updated\n", *family)
}
