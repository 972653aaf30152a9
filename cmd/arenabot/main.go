package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"triarena/client"
	"triarena/config"
)

func main() {
	opts := client.DefaultOptions()
	var count int
	flag.StringVar(&opts.Server, "server", opts.Server, "server base url, e.g. ws://localhost:8787")
	flag.StringVar(&opts.Room, "room", opts.Room, "room name")
	flag.StringVar(&opts.Policy, "policy", opts.Policy, "server policy: relay | authoritative")
	flag.IntVar(&opts.Capacity, "capacity", opts.Capacity, "room capacity (2 or 3)")
	flag.Float64Var(&opts.FireChance, "fire", opts.FireChance, "fire probability per send")
	flag.Float64Var(&opts.DamageChance, "damage", opts.DamageChance, "self-reported damage probability per send")
	flag.DurationVar(&opts.SendEvery, "every", opts.SendEvery, "send interval")
	flag.IntVar(&count, "n", 1, "number of bots")
	flag.Parse()

	if opts.Policy != config.PolicyRelay && opts.Policy != config.PolicyAuthoritative {
		fmt.Fprintf(os.Stderr, "unknown policy %q\n", opts.Policy)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	display := client.NewDisplay()
	display.Info("starting %d bot(s): server=%s room=%s policy=%s every=%s", count, opts.Server, opts.Room, opts.Policy, opts.SendEvery)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		o := opts
		o.Seed = opts.Seed + int64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.NewBot(o, display).Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				display.Error(err.Error())
			}
		}()
	}
	wg.Wait()
	display.Info("all bots stopped")
}
