package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  sessions [limit]   list the most recent sessions
  active             list sessions still marked active
  close-stale        close every session still marked active
  counts             show per-mode session counters (Redis)
  watch              stream session events (Redis)`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	command := os.Args[1]
	switch command {
	case "sessions", "active", "close-stale":
		storageSvc := openDB(cfg) // No redis needed for audit queries
		switch command {
		case "sessions":
			limit := 50
			if len(os.Args) > 2 {
				limit, err = strconv.Atoi(os.Args[2])
				if err != nil || limit <= 0 {
					fmt.Println("Invalid limit. Please provide a positive integer.")
					os.Exit(1)
				}
			}
			rooms, err := storageSvc.ListRooms(ctx, limit, false)
			if err != nil {
				log.Fatalf("Error listing sessions: %v", err)
			}
			printRooms(os.Stdout, rooms)
		case "active":
			rooms, err := storageSvc.ListRooms(ctx, 1000, true)
			if err != nil {
				log.Fatalf("Error listing sessions: %v", err)
			}
			printRooms(os.Stdout, rooms)
		case "close-stale":
			n, err := storageSvc.CloseStaleRooms(ctx, time.Now())
			if err != nil {
				log.Fatalf("Error closing sessions: %v", err)
			}
			fmt.Printf("%d session(s) closed.\n", n)
		}

	case "counts", "watch":
		storageSvc := openRedis(ctx, cfg)
		if command == "counts" {
			counts, err := storageSvc.SessionCounts(ctx)
			if err != nil {
				log.Fatalf("Error reading counters: %v", err)
			}
			for _, m := range []models.Mode{models.ModeText, models.ModeVideo, models.ModeInterests, models.ModeSpy} {
				fmt.Printf("%-10s %d\n", m, counts[m])
			}
			return
		}
		if err := watch(ctx, storageSvc, os.Stdout); err != nil {
			log.Fatalf("Error watching sessions: %v", err)
		}

	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func openDB(cfg config.Config) *storage.Service {
	if cfg.DatabaseDSN == "" {
		log.Fatal("DATABASE_DSN is not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	return storage.NewStorageService(db, nil)
}

func openRedis(ctx context.Context, cfg config.Config) *storage.Service {
	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	return storage.NewStorageService(nil, rdb)
}

func watch(ctx context.Context, s *storage.Service, w io.Writer) error {
	sub, err := s.SubscribeSessions(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fmt.Fprintln(w, msg.Payload)
		}
	}
}

func printRooms(w io.Writer, rooms []models.ChatRoom) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tMODE\tMEMBERS\tSTARTED\tENDED\tREASON")
	for _, r := range rooms {
		ended := "-"
		if r.EndedAt != nil {
			ended = r.EndedAt.UTC().Format(time.RFC3339)
		}
		reason := r.EndReason
		if r.IsActive {
			reason = "active"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RoomID, r.Mode, strings.Join(r.Participants, ","),
			r.StartedAt.UTC().Format(time.RFC3339), ended, reason)
	}
	tw.Flush()
}
