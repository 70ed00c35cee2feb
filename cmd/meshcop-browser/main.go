// meshcop-browser continuously lists Thread border agents advertising the
// MeshCoP service over mDNS. Point it at another service type to browse
// that instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/enbility/zeroconf/v3"
)

func main() {
	service := flag.String("service", "_meshcop._udp", "service type to browse")
	domain := flag.String("domain", "local.", "browse domain")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("stopping browse")
		cancel()
	}()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		if err := zeroconf.Browse(ctx, *service, *domain, entries, removed); err != nil {
			logger.Error("browse", "err", err)
			cancel()
		}
	}()

	logger.Info("browsing", "service", *service, "domain", *domain)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			printEntry("discovered", entry)
		case entry, ok := <-removed:
			if !ok {
				return
			}
			fmt.Printf("service removed: %s\n", entry.Instance)
		case <-ctx.Done():
			return
		}
	}
}

func printEntry(event string, entry *zeroconf.ServiceEntry) {
	fmt.Printf("service %s: %s\n", event, entry.Instance)
	fmt.Printf("  host: %s:%d\n", entry.HostName, entry.Port)
	for _, ip := range entry.AddrIPv4 {
		fmt.Printf("  addr: %s\n", ip)
	}
	for _, ip := range entry.AddrIPv6 {
		fmt.Printf("  addr: %s\n", ip)
	}
	if len(entry.Text) == 0 {
		fmt.Println("  no TXT records")
		return
	}
	for _, txt := range entry.Text {
		key, value, found := strings.Cut(txt, "=")
		if !found {
			fmt.Printf("  txt: %s\n", txt)
			continue
		}
		if !utf8.ValidString(value) {
			// Binary TXT values (e.g. extended address) print as hex.
			value = fmt.Sprintf("0x%x", value)
		}
		fmt.Printf("  txt: %s = %s\n", key, value)
	}
}
