package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"github.com/wooogler/swag/internal/config"
	"github.com/wooogler/swag/internal/database"
	"github.com/wooogler/swag/internal/event"
	"github.com/wooogler/swag/internal/model"
	"github.com/wooogler/swag/internal/store"
)

type Issue struct {
	SessionID string `json:"sessionId"`
	Sequence  int64  `json:"sequenceNumber"`
	Type      string `json:"type"`
	Details   string `json:"details"`
}

func main() {
	_ = godotenv.Load()

	workers := flag.Int("workers", 10, "Number of parallel workers")
	outputFile := flag.String("output", "audit_results.json", "Output file for results")
	flag.Parse()

	cfg := config.Load()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	st := store.New(db)
	ctx := context.Background()

	ids, err := st.SessionIDs(ctx)
	if err != nil {
		log.Fatalf("Failed to list sessions: %v", err)
	}
	total := int64(len(ids))
	fmt.Printf("Auditing %d sessions with %d workers...\n", total, *workers)

	idChan := make(chan string, *workers*10)
	issueChan := make(chan Issue, 1000)

	var processed int64
	var issueCount int64
	var wg sync.WaitGroup

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idChan {
				rows, err := st.ListEvents(ctx, id)
				if err != nil {
					issueChan <- Issue{SessionID: id, Sequence: -1, Type: "LOAD_ERROR", Details: err.Error()}
					atomic.AddInt64(&issueCount, 1)
					continue
				}
				for _, issue := range auditSession(id, rows) {
					issueChan <- issue
					atomic.AddInt64(&issueCount, 1)
				}
				p := atomic.AddInt64(&processed, 1)
				if p%100 == 0 {
					fmt.Printf("Progress: %d/%d (%.1f%%), Issues found: %d\n",
						p, total, float64(p)/float64(total)*100, atomic.LoadInt64(&issueCount))
				}
			}
		}()
	}

	var issues []Issue
	done := make(chan struct{})
	go func() {
		for issue := range issueChan {
			issues = append(issues, issue)
		}
		close(done)
	}()

	startTime := time.Now()
	for _, id := range ids {
		idChan <- id
	}
	close(idChan)
	wg.Wait()
	close(issueChan)
	<-done

	elapsed := time.Since(startTime)
	fmt.Printf("\n=== Audit Complete ===\n")
	fmt.Printf("Total sessions: %d\n", total)
	fmt.Printf("Issues found: %d\n", len(issues))
	fmt.Printf("Time elapsed: %v\n", elapsed)

	issuesByType := make(map[string][]Issue)
	for _, issue := range issues {
		issuesByType[issue.Type] = append(issuesByType[issue.Type], issue)
	}

	fmt.Printf("\n=== Issues by Type ===\n")
	for typ, typeIssues := range issuesByType {
		fmt.Printf("%s: %d\n", typ, len(typeIssues))
	}

	output := map[string]interface{}{
		"summary": map[string]interface{}{
			"sessions": total,
			"issues":   len(issues),
			"elapsed":  elapsed.String(),
		},
		"issuesByType": issuesByType,
		"issues":       issues,
	}

	jsonData, _ := json.MarshalIndent(output, "", "  ")
	if err := os.WriteFile(*outputFile, jsonData, 0644); err != nil {
		log.Printf("Failed to write output file: %v", err)
	} else {
		fmt.Printf("\nResults saved to %s\n", *outputFile)
	}
}

// auditSession checks one session's log, which must be in sequence order.
func auditSession(sessionID string, rows []model.EditorEvent) []Issue {
	var issues []Issue
	add := func(seq int64, typ, details string) {
		issues = append(issues, Issue{SessionID: sessionID, Sequence: seq, Type: typ, Details: details})
	}

	if len(rows) > 0 && rows[0].SequenceNumber != 0 {
		add(rows[0].SequenceNumber, "MISSING_HEAD", fmt.Sprintf("Log starts at #%d", rows[0].SequenceNumber))
	}

	var prevTS int64
	for i, row := range rows {
		r := row.Record()

		if i > 0 {
			prev := rows[i-1].SequenceNumber
			switch {
			case r.SequenceNumber == prev:
				add(r.SequenceNumber, "DUPLICATE_SEQUENCE", "Sequence number stored twice")
			case r.SequenceNumber > prev+1:
				add(r.SequenceNumber, "SEQUENCE_GAP", fmt.Sprintf("Events #%d-#%d missing", prev+1, r.SequenceNumber-1))
			}
			if r.Timestamp < prevTS {
				add(r.SequenceNumber, "TIMESTAMP_REGRESSION", fmt.Sprintf("Timestamp %d is before %d", r.Timestamp, prevTS))
			}
		}
		prevTS = r.Timestamp

		e, err := event.Decode(r)
		if err != nil {
			add(r.SequenceNumber, "DECODE_ERROR", err.Error())
			continue
		}
		if p, ok := e.Payload.(event.Paste); ok && p.Content == "" {
			add(r.SequenceNumber, "EMPTY_PASTE", "Paste carries no content")
		}
	}

	return issues
}
