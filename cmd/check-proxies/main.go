// check-proxies prints the direct egress IP and tests the configured proxy plus any
// proxy URLs given as arguments. Use to verify credentials before starting the watcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	pkgconfig "github.com/Vodeneev/livewatch/internal/pkg/config"
	"github.com/Vodeneev/livewatch/internal/pkg/netcheck"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config with a proxy section (optional)")
	timeout := flag.Duration("timeout", netcheck.DefaultTimeout, "Per-request timeout")
	flag.Parse()

	list := collectProxies(*configPath, flag.Args())

	checker := netcheck.New(netcheck.WithTimeout(*timeout))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Printf("Direct IP: %s\n", checker.CheckIP(ctx))
	if len(list) == 0 {
		fmt.Println("No proxies to check (enable proxy in config or pass proxy URLs as arguments).")
		return
	}

	fmt.Printf("Checking %d proxies (timeout %s, test URL %s)...\n\n", len(list), *timeout, netcheck.DefaultEndpoint)

	type result struct {
		addr   string
		ok     bool
		detail string
	}
	results := make([]result, len(list))

	var wg sync.WaitGroup
	for i, proxyURL := range list {
		wg.Add(1)
		go func(i int, proxyURL string) {
			defer wg.Done()
			ok, detail := checker.TestProxy(ctx, proxyURL)
			results[i] = result{addr: pkgconfig.MaskProxyURL(proxyURL), ok: ok, detail: detail}
		}(i, proxyURL)
	}
	wg.Wait()

	okCount := 0
	for _, r := range results {
		if r.ok {
			okCount++
			fmt.Printf("[OK] %s -> IP: %s\n", r.addr, r.detail)
		} else {
			fmt.Printf("[FAIL] %s -> %s\n", r.addr, r.detail)
		}
	}

	fmt.Printf("\n--- Summary: %d OK, %d FAIL (total %d)\n", okCount, len(list)-okCount, len(list))
	if okCount == 0 {
		fmt.Println("All proxies failed. Possible causes: expired payment, wrong credentials, or network issues.")
		os.Exit(1)
	}
}

// collectProxies returns unique proxy URLs from the config file and the arguments.
func collectProxies(configPath string, args []string) []string {
	seen := make(map[string]struct{})
	var list []string
	add := func(s string) {
		if _, ok := seen[s]; ok || s == "" {
			return
		}
		seen[s] = struct{}{}
		list = append(list, s)
	}

	if configPath != "" {
		cfg, err := pkgconfig.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		if p := cfg.ActiveProxy(); p != nil {
			add(p.URL().String())
		}
	}
	for _, a := range args {
		add(a)
	}
	return list
}
