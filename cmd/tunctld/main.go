package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/ishanjain/tuntap/pkg/adapter"
	"github.com/ishanjain/tuntap/pkg/config"
)

func main() {
	configPath := flag.String("config", "/etc/tunctld/config.yml", "")
	verbose := flag.Bool("v", false, "")
	showVersion := flag.Bool("version", false, "")
	flag.Parse()
	if *showVersion {
		fmt.Println("tunctld version 0.1.0")
		os.Exit(0)
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	verbosity := 0
	if *verbose || cfg.Logging.Verbose {
		verbosity = 1
	}
	logger := funcr.New(func(p, a string) {
		if p != "" {
			fmt.Printf("%s: %s\n", p, a)
		} else {
			fmt.Println(a)
		}
	}, funcr.Options{Verbosity: verbosity})

	a, err := adapter.New(adapterConfig(cfg, logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Interface ready", "name", a.Name(), "mode", a.Layer().String())

	s := &supervisor{adapter: a, logger: logger}
	go s.watchConfig(*configPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := a.Close(); err != nil {
		logger.Error(err, "Teardown failed")
		os.Exit(1)
	}
	logger.Info("Interface released", "name", a.Name())
}

// adapterConfig translates the file configuration into an adapter config.
// The config is validated before it gets here, so the address parses
// cannot fail.
func adapterConfig(cfg *config.Config, logger logr.Logger) adapter.Config {
	ic := cfg.Interface

	ac := adapter.Config{
		Name:     ic.Name,
		Layer:    adapter.IP,
		MTU:      ic.MTU,
		KeepDown: ic.Up != nil && !*ic.Up,
		Logger:   logger,
	}
	if ic.Mode == "tap" {
		ac.Layer = adapter.Ethernet
	}
	if ipnet := parseCIDR(ic.IPv4); ipnet != nil {
		ac.IPv4 = ipnet
	}
	if ipnet := parseCIDR(ic.IPv6); ipnet != nil {
		ac.IPv6 = ipnet
	}
	if ic.Peer != "" {
		ac.RemoteIPv4 = net.ParseIP(ic.Peer)
	}
	return ac
}

func parseCIDR(s string) *net.IPNet {
	if s == "" {
		return nil
	}
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil
	}
	ipnet.IP = ip
	return ipnet
}
