// Command genfeed runs a local websocket server that imitates the lightning
// feed: it waits for the subscription handshake, then emits LZW-compressed
// synthetic strike frames at a fixed interval. Useful for exercising the
// collector end to end without hitting the real feed.
//
// Usage:
//
//	go run ./cmd/genfeed -addr :8081 -interval 250ms
//	FEED_URL=ws://localhost:8081/ go run ./cmd/collector
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/couchcryptid/blitz-stream-collector/internal/lzw"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", ":8081", "listen address")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between frames")
	count := flag.Int("count", 0, "frames to send per connection, 0 for unbounded")
	plain := flag.Bool("plain", false, "send uncompressed JSON frames")
	flag.Parse()

	upgrader := websocket.Upgrader{}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade failed: %v", err)
			return
		}
		go serve(conn, *interval, *count, *plain)
	})

	log.Printf("feed listening on %s", *addr)
	return http.ListenAndServe(*addr, nil)
}

// serve waits for the client's subscription message and then streams frames
// until the client disconnects or the frame count is reached.
func serve(conn *websocket.Conn, interval time.Duration, count int, plain bool) {
	defer conn.Close()

	if _, msg, err := conn.ReadMessage(); err != nil {
		log.Printf("client dropped before subscribing: %v", err)
		return
	} else {
		log.Printf("client subscribed: %s", msg)
	}

	for n := 0; count == 0 || n < count; n++ {
		frame, err := strikeFrame(plain)
		if err != nil {
			log.Printf("frame generation failed: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("client disconnected: %v", err)
			return
		}
		time.Sleep(interval)
	}
}

// strikeFrame builds one synthetic strike. Unless plain is set, the JSON is
// LZW-compressed the way the real feed compresses frames.
func strikeFrame(plain bool) ([]byte, error) {
	strike := map[string]any{
		"time":   time.Now().UnixNano(),
		"lat":    rand.Float64()*180 - 90,
		"lon":    rand.Float64()*360 - 180,
		"alt":    0,
		"pol":    rand.Intn(3) - 1,
		"mds":    rand.Intn(20000),
		"sig":    rand.Intn(30),
		"region": rand.Intn(6) + 1,
		"delay":  rand.Float64() * 10,
	}
	data, err := json.Marshal(strike)
	if err != nil {
		return nil, fmt.Errorf("marshal strike: %w", err)
	}
	if plain {
		return data, nil
	}
	compressed, err := lzw.EncodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("compress strike: %w", err)
	}
	return []byte(compressed), nil
}
