// haierbridge-cli is a diagnostic tool: it logs in, prints the account's
// devices and optionally toggles one on or off.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkurtov/haierbridge/internal/client"
	"github.com/mkurtov/haierbridge/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	mac := flag.String("device", "", "network address of the device to control")
	power := flag.String("power", "", "on|off")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	bridge, err := client.New(cfg, log)
	if err != nil {
		fatal("build client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := bridge.Start(ctx); err != nil {
		fatal("start: %v", err)
	}
	defer bridge.Stop()

	for _, appliance := range bridge.Appliances() {
		state := appliance.State()
		fmt.Printf("%s\t%s\t%s\t%s\ton=%v current=%.1f target=%.1f\n",
			appliance.ID(), appliance.Name(), appliance.Kind(), appliance.MAC(),
			state.On, state.CurrentTemperature, state.TargetTemperature)
	}

	if *mac == "" || *power == "" {
		return
	}
	appliance, ok := bridge.Appliance(*mac)
	if !ok {
		fatal("no device with address %s", *mac)
	}
	switch *power {
	case "on":
		err = appliance.SwitchOn(ctx)
	case "off":
		err = appliance.SwitchOff(ctx)
	default:
		fatal("power must be on or off")
	}
	if err != nil {
		fatal("command failed: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
