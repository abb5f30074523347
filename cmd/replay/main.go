package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wooogler/swag/internal/config"
	"github.com/wooogler/swag/internal/database"
	"github.com/wooogler/swag/internal/idle"
	"github.com/wooogler/swag/internal/replay"
	"github.com/wooogler/swag/internal/store"
)

func main() {
	_ = godotenv.Load()

	sessionID := flag.String("session", "", "Session ID to replay")
	speed := flag.Float64("speed", replay.DefaultSpeed, "Playback speed (0.5, 1, 2, 5 or 10)")
	interval := flag.Duration("interval", 500*time.Millisecond, "Time between printed frames")
	summaryOnly := flag.Bool("summary", false, "Print the summary and idle periods without playing")
	flag.Parse()

	if *sessionID == "" {
		log.Fatal("-session is required")
	}

	cfg := config.Load()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	st := store.New(db)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	data, err := st.LoadReplay(ctx, *sessionID, cfg.Idle)
	if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}
	tl := data.Timeline()
	mapper := idle.NewMapper(cfg.Idle, tl.Timestamps())

	sum := replay.Summarize(tl, len(data.Conversations))
	fmt.Printf("Session %s (%s)\n", data.Session.ID, data.Session.StudentName)
	fmt.Printf("Events: %d, pastes: %d external / %d internal, chat messages: %d, words: %d\n",
		sum.TotalEditorEvents, sum.ExternalPasteAttempts, sum.InternalPastes, sum.TotalChatMessages, sum.WordCount)
	fmt.Printf("Real length: %s, replay length: %s\n",
		time.Duration(data.EndTime-data.StartTime)*time.Millisecond,
		time.Duration(mapper.CompressedDuration(data.StartTime, data.EndTime))*time.Millisecond)
	for _, p := range data.IdlePeriods {
		fmt.Printf("  idle %s +%dm\n", clockTime(p.Start), p.Minutes)
	}
	if *summaryOnly {
		return
	}

	player := replay.NewPlayer(tl, mapper, data.StartTime, data.EndTime)
	if err := player.SetSpeed(*speed); err != nil {
		log.Fatalf("Invalid speed %v: %v", *speed, err)
	}

	var lastText string
	err = player.Run(ctx, *interval, func(f replay.Frame) {
		if f.Skipped {
			fmt.Printf("[%s] ... skipped idle time\n", clockTime(f.Time))
		}
		if f.Paste != nil && f.Paste.Timestamp > f.Time-interval.Milliseconds()*int64(*speed) {
			kind := "external paste attempt"
			if f.Paste.Internal {
				kind = "internal paste"
			}
			fmt.Printf("[%s] %s: %q\n", clockTime(f.Time), kind, f.Paste.Content)
		}
		if f.Text != lastText {
			fmt.Printf("[%s] %s\n", clockTime(f.Time), lastLine(f.Text))
			lastText = f.Text
		}
	})
	if err != nil && err != context.Canceled {
		log.Fatalf("Replay failed: %v", err)
	}
}

func clockTime(ms int64) string {
	return time.UnixMilli(ms).Format("15:04:05")
}

func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	return lines[len(lines)-1]
}
