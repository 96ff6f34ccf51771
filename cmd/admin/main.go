package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"heartline/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
	storageSvc := storage.NewStorageService(db, rdb)

	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "ban":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin ban <user_id> [duration_in_hours]")
			os.Exit(1)
		}
		userID := os.Args[2]
		var duration int
		if len(os.Args) > 3 {
			var err error
			duration, err = strconv.Atoi(os.Args[3])
			if err != nil {
				fmt.Println("Invalid duration. Please provide an integer.")
				os.Exit(1)
			}
		}
		if err := banUser(storageSvc, userID, duration); err != nil {
			log.Fatalf("Error banning user: %v", err)
		}
		fmt.Printf("User %s has been banned.\n", userID)
	case "unban":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin unban <user_id>")
			os.Exit(1)
		}
		userID := os.Args[2]
		if err := unbanUser(storageSvc, userID); err != nil {
			log.Fatalf("Error unbanning user: %v", err)
		}
		fmt.Printf("User %s has been unbanned.\n", userID)
	case "resolve-report":
		if len(os.Args) < 4 {
			fmt.Println("Usage: admin resolve-report <report_id> <resolution...>")
			os.Exit(1)
		}
		reportID, err := strconv.Atoi(os.Args[2])
		if err != nil {
			fmt.Println("Invalid report ID. Please provide an integer.")
			os.Exit(1)
		}
		resolution := strings.Join(os.Args[3:], " ")
		if err := resolveReport(storageSvc, uint(reportID), resolution); err != nil {
			log.Fatalf("Error resolving report: %v", err)
		}
		fmt.Printf("Report %d has been resolved.\n", reportID)
	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}

// banUser suspends the account. duration == 0 bans indefinitely; the flag
// on the user row keeps the ban visible even after the Redis key expires.
func banUser(s storage.Storage, userID string, duration int) error {
	if _, err := s.GetUserByID(userID); err != nil {
		return err
	}
	var d time.Duration
	if duration > 0 {
		d = time.Duration(duration) * time.Hour
	}
	if err := s.BanUser(userID, d); err != nil {
		return err
	}
	return s.SetUserActive(userID, false)
}

func unbanUser(s storage.Storage, userID string) error {
	if _, err := s.GetUserByID(userID); err != nil {
		return err
	}
	if err := s.UnbanUser(userID); err != nil {
		return err
	}
	return s.SetUserActive(userID, true)
}

func resolveReport(s storage.Storage, reportID uint, resolution string) error {
	if _, err := s.GetReportByID(reportID); err != nil {
		return err
	}
	return s.ResolveReport(reportID, resolution)
}
