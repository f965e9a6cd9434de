package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	nats "github.com/nats-io/nats.go"

	"github.com/GauntletMC/Graphite/internal/eventbus"
)

const (
	defaultServerAddr = "nats://127.0.0.1:4222"
	timeFormat        = "2006-01-02T15:04:05Z"
	idleTimeout       = 2 * time.Second
)

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "NATS server address")
		stream     = flag.String("stream", "GRAPHITE", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		worldName  = flag.String("world", "", "World name filter")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m) or RFC3339 time")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
	)
	flag.Parse()

	nc, err := nats.Connect(*serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("JetStream: %v", err)
	}

	start, err := parseSinceTime(*since, time.Now())
	if err != nil {
		log.Fatalf("Invalid since time: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := ReadOptions{
		Stream: *stream,
		Types:  parseStringList(*eventTypes),
		World:  *worldName,
		Since:  start,
		Limit:  *limit,
		Follow: *follow,
	}

	switch *command {
	case "tail":
		n, err := readEvents(ctx, js, opts, printEvent)
		if err != nil {
			log.Fatalf("Tail failed: %v", err)
		}
		fmt.Printf("\nTotal events: %d\n", n)

	case "stats":
		opts.Follow = false
		opts.Limit = 0
		counts := make(map[string]int)
		n, err := readEvents(ctx, js, opts, func(ev *eventbus.Envelope) { counts[ev.EventType]++ })
		if err != nil {
			log.Fatalf("Stats failed: %v", err)
		}
		fmt.Printf("Period: %s - now\n", start.UTC().Format(timeFormat))
		fmt.Printf("Total events: %d\n", n)
		fmt.Println("\nBy event type:")
		for _, t := range sortedKeys(counts) {
			fmt.Printf("  %s: %d events\n", t, counts[t])
		}

	case "types":
		for _, t := range knownTypes {
			fmt.Println(t)
		}

	default:
		fmt.Printf("Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
}

// knownTypes события, которые публикует сервер
var knownTypes = []string{
	eventbus.TypeWorldStarted,
	eventbus.TypeWorldStopped,
	eventbus.TypePlayerJoined,
	eventbus.TypePlayerLeft,
	eventbus.TypeChunkFailed,
	eventbus.TypeChunkEvicted,
}

// ReadOptions параметры чтения стрима
type ReadOptions struct {
	Stream string
	Types  []string
	World  string
	Since  time.Time
	Limit  int // 0 - без ограничения
	Follow bool
}

// readEvents читает стрим упорядоченным эфемерным consumer'ом начиная с Since.
// Без Follow останавливается, когда догоняет конец стрима.
func readEvents(ctx context.Context, js nats.JetStreamContext, opts ReadOptions, fn func(*eventbus.Envelope)) (int, error) {
	sub, err := js.SubscribeSync(eventbus.SubjectFor(opts.filter()),
		nats.BindStream(opts.Stream),
		nats.OrderedConsumer(),
		nats.StartTime(opts.Since),
	)
	if err != nil {
		return 0, fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	count := 0
	for opts.Limit <= 0 || count < opts.Limit {
		if ctx.Err() != nil {
			return count, nil
		}
		msg, err := sub.NextMsg(idleTimeout)
		switch {
		case errors.Is(err, nats.ErrTimeout):
			if opts.Follow {
				continue
			}
			return count, nil
		case err != nil:
			return count, err
		}

		var ev eventbus.Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", msg.Subject, err)
			continue
		}
		if matches(&ev, opts) {
			fn(&ev)
			count++
		}

		if !opts.Follow {
			if meta, err := msg.Metadata(); err == nil && meta.NumPending == 0 {
				return count, nil
			}
		}
	}
	return count, nil
}

func (o ReadOptions) filter() eventbus.Filter {
	f := eventbus.Filter{Types: o.Types}
	if o.World != "" {
		f.Worlds = []string{o.World}
	}
	return f
}

func matches(ev *eventbus.Envelope, opts ReadOptions) bool {
	return opts.filter().Match(ev)
}

var (
	typeColor = color.New(color.FgCyan, color.Bold)
	failColor = color.New(color.FgRed)
)

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %s [%s] %s\n",
		ev.Timestamp.Local().Format("15:04:05"),
		ev.Source,
		typeColor.Sprint(ev.EventType),
		ev.ID)

	switch ev.EventType {
	case eventbus.TypePlayerJoined, eventbus.TypePlayerLeft:
		var p eventbus.PlayerEvent
		if ev.Decode(&p) == nil {
			fmt.Printf("  World: %s Player: %s (%s) eid=%d\n", p.World, p.Name, p.UUID, p.EntityID)
			if p.Reason != "" {
				fmt.Printf("  Reason: %s\n", p.Reason)
			}
		}
	case eventbus.TypeChunkFailed, eventbus.TypeChunkEvicted:
		var c eventbus.ChunkEvent
		if ev.Decode(&c) == nil {
			fmt.Printf("  World: %s Chunk: (%d,%d)\n", c.World, c.X, c.Z)
			if c.Error != "" {
				fmt.Printf("  %s\n", failColor.Sprint(c.Error))
			}
		}
	case eventbus.TypeWorldStarted, eventbus.TypeWorldStopped:
		var w eventbus.WorldEvent
		if ev.Decode(&w) == nil {
			fmt.Printf("  World: %s\n", w.World)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m" или абсолютное RFC3339
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}
