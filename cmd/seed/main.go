package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wooogler/swag/internal/auth"
	"github.com/wooogler/swag/internal/capture"
	"github.com/wooogler/swag/internal/client"
	"github.com/wooogler/swag/internal/clock"
	"github.com/wooogler/swag/internal/config"
	"github.com/wooogler/swag/internal/database"
	"github.com/wooogler/swag/internal/event"
	"github.com/wooogler/swag/internal/model"
	"github.com/wooogler/swag/internal/store"
	"github.com/wooogler/swag/internal/tracker"
)

var essay = []string{
	"Cells are the basic unit of life.",
	"Every organism is made of one or more cells.",
	"The membrane controls what enters and leaves.",
	"Mitochondria turn nutrients into usable energy.",
}

const assistantReply = "The mitochondria is often called the powerhouse of the cell."

// storeSink writes tracker batches straight to the database.
type storeSink struct {
	store *store.Store
}

func (s storeSink) SaveEvents(ctx context.Context, sessionID string, records []event.Record) (int, error) {
	res, err := s.store.AppendEvents(ctx, sessionID, records)
	return res.Saved, err
}

func main() {
	_ = godotenv.Load()

	email := flag.String("instructor", "instructor@example.edu", "Instructor email")
	student := flag.String("student", "demo@example.edu", "Student email")
	breakMinutes := flag.Int("break", 5, "Length of the idle break in the demo session, in minutes")
	apiURL := flag.String("api", "", "Send events through a running server at this URL instead of writing to the database")
	flag.Parse()

	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	st := store.New(db)
	ctx := context.Background()

	inst := model.Instructor{Email: strings.ToLower(*email)}
	if err := db.Where(model.Instructor{Email: inst.Email}).Attrs(model.Instructor{Name: "Demo Instructor"}).FirstOrCreate(&inst).Error; err != nil {
		log.Fatalf("Failed to create instructor: %v", err)
	}

	asg := model.Assignment{
		Title:        "Demo: Cell Biology Essay",
		Instructions: "Explain the structure of a cell in your own words.",
		Deadline:     time.Now().Add(7 * 24 * time.Hour),
		InstructorID: &inst.ID,
	}
	if err := db.Create(&asg).Error; err != nil {
		log.Fatalf("Failed to create assignment: %v", err)
	}

	sess, _, err := st.StartSession(ctx, asg.ID, "Demo Student", *student)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	var sink tracker.Sink = storeSink{store: st}
	if *apiURL != "" {
		sink = client.NewEventsClient(*apiURL)
	}

	if err := simulate(ctx, st, sink, sess.ID, cfg.Tracker, time.Duration(*breakMinutes)*time.Minute); err != nil {
		log.Fatalf("Failed to record demo session: %v", err)
	}

	token, err := auth.GenerateAccessToken(&inst, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	log.Printf("Seeding complete. assignment=%s shareToken=%s session=%s", asg.ID, asg.ShareToken, sess.ID)
	fmt.Println(token)
}

// simulate replays a short writing session through a Recorder on a virtual
// clock: typing, a question to the assistant, an internal paste, an external
// paste attempt, an idle break and a submission.
func simulate(ctx context.Context, st *store.Store, sink tracker.Sink, sessionID string, tc tracker.Config, idleBreak time.Duration) error {
	clk := clock.NewManual(time.Now().Add(-time.Hour))

	var lines []string
	docs := tracker.DocumentFunc(func() (event.Document, error) {
		return document(lines), nil
	})
	rec := capture.NewRecorder(sessionID, sink,
		tracker.WithClock(clk),
		tracker.WithConfig(tc),
		tracker.WithDocumentSource(docs),
	)

	typeLine := func(line string) {
		for range strings.Fields(line) {
			clk.Advance(400 * time.Millisecond)
			rec.OnDocumentChange()
		}
		lines = append(lines, line)
		clk.Advance(2 * time.Second)
	}

	typeLine(essay[0])
	typeLine(essay[1])

	conv, err := st.CreateConversation(ctx, sessionID, "Organelles")
	if err != nil {
		return err
	}
	if _, err := st.AppendMessage(ctx, conv.ID, store.NewMessage{
		Role: model.RoleUser, Content: "What do mitochondria do?", Timestamp: clk.Now(),
	}); err != nil {
		return err
	}
	clk.Advance(3 * time.Second)
	if _, err := st.AppendMessage(ctx, conv.ID, store.NewMessage{
		Role: model.RoleAssistant, Content: assistantReply, Timestamp: clk.Now(),
	}); err != nil {
		return err
	}
	rec.OnAssistantMessage(assistantReply)

	clk.Advance(5 * time.Second)
	rec.OnPaste("powerhouse of the cell")
	typeLine(essay[2])

	clk.Advance(time.Second)
	rec.OnPaste("Text copied from a website about cells.")

	clk.Advance(idleBreak)
	typeLine(essay[3])

	if err := rec.Submit(document(lines)); err != nil {
		return err
	}
	clk.Advance(tc.FlushDelay)
	return rec.Close(ctx)
}

func document(lines []string) event.Document {
	type text struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	type block struct {
		Type    string `json:"type"`
		Content []text `json:"content"`
	}
	blocks := make([]block, 0, len(lines))
	for _, l := range lines {
		blocks = append(blocks, block{Type: "paragraph", Content: []text{{Type: "text", Text: l}}})
	}
	b, _ := json.Marshal(blocks)
	return b
}
