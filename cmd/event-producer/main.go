package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// MatchEvent mirrors the intake envelope the server consumes
type MatchEvent struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	MatchID string        `json:"match_id"`
	Players []MatchPlayer `json:"players"`
}

// MatchPlayer is one participant's result
type MatchPlayer struct {
	PlayerID string `json:"player_id"`
	Outcome  string `json:"outcome,omitempty"`
}

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "match-events", "Kafka topic")
	totalPlayers := flag.Int("players", 1000, "Player pool size")
	matchesPerSecond := flag.Int("rate", 50, "Matches per second")
	duplicatePercent := flag.Int("duplicates", 5, "Percent of finish events re-sent with the same event_id")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Match event producer")
	fmt.Printf("  Brokers:      %s\n", *brokers)
	fmt.Printf("  Topic:        %s\n", *topic)
	fmt.Printf("  Player pool:  %d\n", *totalPlayers)
	fmt.Printf("  Matches/sec:  %d\n", *matchesPerSecond)
	fmt.Printf("  Duplicates:   %d%%\n", *duplicatePercent)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendEvent := func(event MatchEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal event: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(event.MatchID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	interval := time.Second / time.Duration(*matchesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var matchCount int64

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				shutdown()
				return
			}

			// Pick two distinct players for a match
			a := rand.Intn(*totalPlayers)
			b := rand.Intn(*totalPlayers)
			for b == a {
				b = rand.Intn(*totalPlayers)
			}

			matchID := uuid.New().String()
			sendEvent(MatchEvent{
				EventID: uuid.New().String(),
				Type:    "match_started",
				MatchID: matchID,
				Players: []MatchPlayer{
					{PlayerID: getPlayerName(a)},
					{PlayerID: getPlayerName(b)},
				},
			})

			finish := MatchEvent{
				EventID: uuid.New().String(),
				Type:    "match_finished",
				MatchID: matchID,
				Players: []MatchPlayer{
					{PlayerID: getPlayerName(a), Outcome: "win"},
					{PlayerID: getPlayerName(b), Outcome: "lose"},
				},
			}
			sendEvent(finish)

			// Replay a slice of finish events verbatim to exercise the
			// server's dedup filter.
			if rand.Intn(100) < *duplicatePercent {
				sendEvent(finish)
			}

			atomic.AddInt64(&matchCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Matches: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&matchCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
