package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"mediavault/pkg/authz"
	"mediavault/pkg/store"
	"mediavault/services/collector/internal/config"
)

const usage = `usage: authzadmin [-config path] <command>

commands:
  grant <user> <days> <granted-by>   create or refresh a user's grant
  revoke <user>                      deactivate a user's grant
  list                               print active grants, soonest expiry first
`

func main() {
	configPath := flag.String("config", config.ConfigPath, "collector config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	authzStore, err := authz.NewGormStore(dataStore.DB())
	if err != nil {
		log.Fatalf("failed to init authz store: %v", err)
	}
	cache, err := authz.NewCachedAuthorizer(authzStore, cfg.RedisAddr, cfg.RedisPassword,
		time.Duration(cfg.AuthzCacheTTLSec)*time.Second)
	if err != nil {
		log.Fatalf("failed to init authz cache: %v", err)
	}

	ctx := context.Background()
	switch args[0] {
	case "grant":
		if len(args) != 4 {
			flag.Usage()
			os.Exit(2)
		}
		days, err := strconv.Atoi(args[2])
		if err != nil || days <= 0 {
			log.Fatalf("invalid day count %q", args[2])
		}
		rec, err := authzStore.Grant(args[1], args[3], time.Duration(days)*24*time.Hour)
		if err != nil {
			log.Fatalf("grant failed: %v", err)
		}
		cache.Invalidate(ctx, args[1])
		fmt.Printf("granted %s until %s\n", rec.UserID, rec.ExpiresAt.Format(time.RFC3339))
	case "revoke":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		if err := authzStore.Revoke(args[1]); err != nil {
			log.Fatalf("revoke failed: %v", err)
		}
		cache.Invalidate(ctx, args[1])
		fmt.Printf("revoked %s\n", args[1])
	case "list":
		recs, err := authzStore.ListActive()
		if err != nil {
			log.Fatalf("list failed: %v", err)
		}
		for _, rec := range recs {
			fmt.Printf("%s\tgranted by %s\texpires %s\n",
				rec.UserID, rec.GrantedBy, rec.ExpiresAt.Format(time.RFC3339))
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}
