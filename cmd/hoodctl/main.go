package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bogenrs/silverline-hood/internal/hood"
)

func main() {
	host := flag.String("host", os.Getenv("HOODCTL_DEVICE_HOST"), "device host")
	port := flag.Int("port", envPort(), "device port")
	timeout := flag.Duration("timeout", 15*time.Second, "overall command timeout")
	flag.Parse()

	if *host == "" || flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	client, err := hood.NewClient(hood.Config{
		Host:   *host,
		Port:   *port,
		Logger: zerolog.New(os.Stderr).Level(zerolog.WarnLevel),
	})
	if err != nil {
		fatal("client", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch flag.Arg(0) {
	case "status":
		state, err := client.QueryStatus(ctx)
		if err != nil {
			fatal("status", err)
		}
		printState(state)
	case "ping":
		if err := client.Ping(ctx); err != nil {
			fatal("ping", err)
		}
		fmt.Println("ok")
	case "light":
		lightCmd(ctx, client, flag.Args()[1:])
	case "fan":
		fanCmd(ctx, client, flag.Args()[1:])
	case "set":
		setCmd(ctx, client, flag.Args()[1:])
	default:
		usage()
		os.Exit(2)
	}
}

func lightCmd(ctx context.Context, client *hood.Client, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	var cmd hood.Command
	switch args[0] {
	case "on":
		cmd = hood.CmdLightOn
	case "off":
		cmd = hood.CmdLightOff
	default:
		fatal("light", fmt.Errorf("want on or off, got %q", args[0]))
	}
	state, err := client.SendSymbolic(ctx, cmd)
	if err != nil {
		fatal("light", err)
	}
	printState(state)
}

func fanCmd(ctx context.Context, client *hood.Client, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	var cmd hood.Command
	switch args[0] {
	case "off":
		cmd = hood.CmdFanOff
	case "1", "2", "3", "4":
		cmd = hood.Command("fan-speed-" + args[0])
	default:
		fatal("fan", fmt.Errorf("want off or 1..4, got %q", args[0]))
	}
	state, err := client.SendSymbolic(ctx, cmd)
	if err != nil {
		fatal("fan", err)
	}
	printState(state)
}

func setCmd(ctx context.Context, client *hood.Client, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	delta := hood.State{}
	for _, arg := range args {
		field, raw, ok := strings.Cut(arg, "=")
		if !ok {
			fatal("set", fmt.Errorf("want FIELD=VALUE, got %q", arg))
		}
		if n, err := strconv.Atoi(raw); err == nil {
			delta[field] = n
		} else {
			delta[field] = raw
		}
	}
	state, err := client.SendDelta(ctx, delta)
	if err != nil {
		fatal("set", err)
	}
	printState(state)
}

func printState(state hood.State) {
	fields := make([]string, 0, len(state))
	for field := range state {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		value, _ := json.Marshal(state[field])
		fmt.Printf("%s\t%s\n", field, value)
	}
}

func envPort() int {
	if raw := os.Getenv("HOODCTL_DEVICE_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			return port
		}
	}
	return hood.DefaultPort
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: hoodctl -host HOST [-port PORT] COMMAND

commands:
  status                query and print the device state
  ping                  verify the device answers a status query
  light on|off          switch the light
  fan off|1|2|3|4       set the fan speed
  set FIELD=VALUE ...   send a raw partial state, e.g. set L=2 BRG=200`)
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "hoodctl %s: %v\n", action, err)
	os.Exit(1)
}
