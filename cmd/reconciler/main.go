package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/nearwatch/reconciler/configs"
	"github.com/nearwatch/reconciler/internal/balance"
	"github.com/nearwatch/reconciler/internal/discovery"
	"github.com/nearwatch/reconciler/internal/gapdetect"
	"github.com/nearwatch/reconciler/internal/gapfill"
	"github.com/nearwatch/reconciler/internal/httpapi"
	"github.com/nearwatch/reconciler/internal/metadata"
	"github.com/nearwatch/reconciler/internal/monitor"
	"github.com/nearwatch/reconciler/internal/rpcclient"
	"github.com/nearwatch/reconciler/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	conf, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		panic(err)
	}

	dsn, err := conf.DatabaseDSN()
	if err != nil {
		panic(err)
	}

	st, err := store.NewStore(dsn)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	ctx := context.Background()
	rpc, err := rpcclient.Dial(ctx, withAPIKey(conf.RPC.Endpoint, conf.APIKey()))
	if err != nil {
		panic(err)
	}
	defer rpc.Close()

	metadataCache := metadata.New(rpc, st)
	balances := balance.New(rpc, metadataCache)
	balances.SetMaxMissingBlockRetries(conf.EffectiveMissingBlockRetries())
	gapDetector := gapdetect.New(st.DB())
	filler := gapfill.New(balances, rpc, rpc, st, gapDetector)
	filler.SetLookbacks(defaultOr(conf.Lookback.SeedBlocks, gapfill.DefaultSeedLookback), defaultOr(conf.Lookback.BackwardBlocks, gapfill.DefaultBackwardLookback))

	mon := monitor.New(st, filler)

	if conf.HTTP.Addr != "" {
		server := httpapi.New(mon, st, rpc)
		go func() {
			log.Printf("manual-operation HTTP adapter listening on %s", conf.HTTP.Addr)
			if err := http.ListenAndServe(conf.HTTP.Addr, server); err != nil {
				log.Printf("http adapter stopped: %v", err)
			}
		}()
	}

	interval := conf.MonitorCycleInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	discoveryInterval := conf.DiscoveryCycleInterval()
	if discoveryInterval <= 0 {
		discoveryInterval = 30 * time.Minute
	}
	discoveryTicker := time.NewTicker(discoveryInterval)
	defer discoveryTicker.Stop()

	go func() {
		for {
			head, err := rpc.LatestBlockHeight(ctx)
			if err != nil {
				log.Printf("discovery cycle skipped: resolving chain head: %v", err)
			} else {
				result, err := discovery.RunCycle(ctx, rpc, rpc, st, filler, head)
				if err != nil {
					log.Printf("discovery cycle aborted: %v", err)
				} else {
					log.Printf("discovery cycle complete: %d accounts, %d tokens seeded, %d errors",
						result.AccountsVisited, result.TokensSeeded, len(result.Errors))
				}
			}
			<-discoveryTicker.C
		}
	}()

	log.Printf("reconciler starting: cycle every %s, discovery every %s", interval, discoveryInterval)
	for {
		head, err := rpc.LatestBlockHeight(ctx)
		if err != nil {
			log.Printf("monitor cycle skipped: resolving chain head: %v", err)
		} else {
			result, err := mon.RunCycle(ctx, head)
			if err != nil {
				log.Printf("monitor cycle aborted: %v", err)
			} else {
				log.Printf("monitor cycle complete: %d accounts, %d tokens, %d errors",
					result.AccountsVisited, result.TokensProcessed, len(result.Errors))
			}
		}
		<-ticker.C
	}
}

// withAPIKey appends the archival provider's bearer credential as a query
// parameter, the common convention for hosted NEAR RPC endpoints.
func withAPIKey(endpoint, apiKey string) string {
	if apiKey == "" {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set("apiKey", apiKey)
	u.RawQuery = q.Encode()
	return u.String()
}

func defaultOr(v, fallback uint64) uint64 {
	if v == 0 {
		return fallback
	}
	return v
}
