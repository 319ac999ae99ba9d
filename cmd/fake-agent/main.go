// Fake lab machine for manual and end-to-end testing. It connects as an agent,
// reports a location and hardware descriptor, and pushes synthetic frames at
// a fixed rate. The hub forwards them to whichever controllers are watching.
//
// Usage: fake-agent [-url ws://localhost:8080/socket] [-lab LAB1] [-key XXXX-...] [-screen=false]
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Sentini2/edusp/internal/relay"
	"github.com/Sentini2/edusp/internal/ws"
)

func main() {
	addr := flag.String("url", "ws://localhost:8080/socket", "Hub websocket URL")
	lab := flag.String("lab", "", "Lab to join")
	key := flag.String("key", "", "License key")
	hwid := flag.String("hwid", "fake-"+uuid.NewString()[:8], "Hardware id reported to the license gate")
	fps := flag.Int("fps", 2, "Frames per second")
	screen := flag.Bool("screen", true, "Also push screen frames")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *addr, *lab, *key, *hwid, *fps, *screen); err != nil {
		log.Fatal(err)
	}
}

type agent struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (a *agent) send(event string, payload any) error {
	data, err := ws.Encode(event, payload)
	if err != nil {
		return err
	}
	a.wmu.Lock()
	defer a.wmu.Unlock()
	return a.conn.WriteMessage(websocket.TextMessage, data)
}

func run(ctx context.Context, addr, lab, key, hwid string, fps int, screen bool) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	q := u.Query()
	q.Set("role", string(relay.RoleAgent))
	if lab != "" {
		q.Set("lab", lab)
	}
	if key != "" {
		q.Set("key", key)
	}
	q.Set("hwid", hwid)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	a := &agent{conn: conn}

	if err := a.send(relay.EventLocation, map[string]any{"lat": -23.55, "lng": -46.63, "room": "fake"}); err != nil {
		return fmt.Errorf("failed to send location: %w", err)
	}
	if err := a.send(relay.EventHWInfo, hwinfo()); err != nil {
		return fmt.Errorf("failed to send hwinfo: %w", err)
	}

	go a.stream(ctx, fps, screen)

	go func() {
		<-ctx.Done()
		a.wmu.Lock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		a.wmu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case relay.EventID:
			var id string
			json.Unmarshal(msg.Data, &id)
			fmt.Fprintf(os.Stderr, "registered as %s\n", id)
		case ws.EventError:
			return fmt.Errorf("refused by hub: %s", msg.Data)
		case relay.EventRequestHWInfo:
			a.send(relay.EventHWInfo, hwinfo())
		default:
			fmt.Fprintf(os.Stderr, "command %s %s\n", msg.Event, msg.Data)
		}
	}
}

func (a *agent) stream(ctx context.Context, fps int, screen bool) {
	if fps <= 0 {
		fps = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		seq++
		if err := a.send(relay.EventFrame, syntheticFrame("video", seq)); err != nil {
			return
		}
		if screen {
			if err := a.send(relay.EventScreenFrame, syntheticFrame("screen", seq)); err != nil {
				return
			}
		}
	}
}

func syntheticFrame(kind string, seq int) string {
	body := fmt.Sprintf("%s frame %d at %s", kind, seq, time.Now().Format(time.RFC3339Nano))
	return "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(body))
}

func hwinfo() map[string]any {
	host, _ := os.Hostname()
	return map[string]any{
		"hostname": host,
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"cpus":     runtime.NumCPU(),
	}
}
