package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/config"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  sessions              list archived sessions still marked active
  session <id>          show an archived session
  history <session_id>  print the archived chat of a session
  queue                 show the redis mirror of the search queue
  close-stale           mark every active archived session as ended
  watch                 stream hub events from all nodes`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	logger.Init(cfg.IsProduction())
	defer logger.Sync()

	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatalf("failed to connect database: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	storageSvc := storage.NewStorageService(db, rdb)

	command := os.Args[1]
	switch command {
	case "sessions":
		err = listActive(storageSvc)
	case "session":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin session <session_id>")
			os.Exit(1)
		}
		err = showSession(storageSvc, os.Args[2])
	case "history":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin history <session_id>")
			os.Exit(1)
		}
		err = printHistory(storageSvc, os.Args[2])
	case "queue":
		err = printQueue(storageSvc)
	case "close-stale":
		var n int64
		n, err = storageSvc.CloseStaleSessions()
		if err == nil {
			fmt.Printf("Closed %d sessions.\n", n)
		}
	case "watch":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err = chathub.WatchEvents(ctx, storageSvc, printEvent)
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		logger.Fatalf("%s: %v", command, err)
	}
}

func listActive(s storage.Storage) error {
	ids, err := s.GetActiveSessionIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No active sessions.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func showSession(s storage.Storage, id string) error {
	rec, err := s.GetSessionRecord(id)
	if err != nil {
		return err
	}
	fmt.Printf("%s  archive=%s  mode=%s  participants=%v  active=%v  started=%s",
		rec.SessionID, rec.ArchiveID, rec.Mode, []string(rec.Participants), rec.IsActive, rec.StartedAt.Format(time.RFC3339))
	if rec.EndedAt != nil {
		fmt.Printf("  ended=%s", rec.EndedAt.Format(time.RFC3339))
	}
	fmt.Println()
	return nil
}

// printHistory prints the chat of the latest pairing with sessionID.
func printHistory(s storage.Storage, sessionID string) error {
	rec, err := s.GetSessionRecord(sessionID)
	if err != nil {
		return err
	}
	history, err := s.GetChatHistory(rec.ArchiveID)
	if err != nil {
		return err
	}
	for _, h := range history {
		fmt.Printf("[%s] %s: %s\n", h.SentAt.Format("15:04:05"), h.SenderID, h.Text)
	}
	return nil
}

func printQueue(s storage.Storage) error {
	users, err := s.GetSearchingUsers()
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("%s\t%s\n", id, users[id])
	}
	fmt.Printf("%d searching\n", len(ids))
	return nil
}

func printEvent(ev models.Event) {
	line := fmt.Sprintf("%s %-16s user=%s", time.Now().Format("15:04:05"), ev.Type, ev.RecipientID)
	if ev.SessionID != "" {
		line += " session=" + ev.SessionID
	}
	if ev.Mode != "" {
		line += " mode=" + string(ev.Mode)
	}
	fmt.Println(line)
}
