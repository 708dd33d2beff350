// Command relay is a fake relay for manual runs: it accepts one colony,
// invents a few viewers and makes them grab pawns and issue jobs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	v1 "github.com/yola1107/puppeteer/api/relay/v1"
	"github.com/yola1107/puppeteer/library/ext"
	"github.com/yola1107/puppeteer/log"
	pws "github.com/yola1107/puppeteer/transport/websocket"
)

var (
	addr    string
	viewers int
	every   time.Duration
)

func init() {
	flag.StringVar(&addr, "addr", ":9000", "listen address")
	flag.IntVar(&viewers, "viewers", 3, "simulated viewers")
	flag.DurationVar(&every, "every", 2*time.Second, "mean delay between viewer actions")
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("token")
		if err != nil || pws.ValidateToken(ck.Value) != nil {
			log.Warnf("rejecting %s: bad token", r.RemoteAddr)
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover})
		if err != nil {
			log.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		if err := serve(r.Context(), conn); err != nil {
			log.Infof("colony %s left: %v", r.RemoteAddr, err)
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Infof("fake relay listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

type colonySession struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	roster []v1.Colonist
	crowd  []v1.Viewer
}

func serve(ctx context.Context, conn *websocket.Conn) error {
	s := &colonySession{conn: conn}
	for i := 0; i < viewers; i++ {
		s.crowd = append(s.crowd, v1.Viewer{Service: "fake", ID: uuid.NewString(), Name: fmt.Sprintf("viewer%d", i+1)})
	}

	var hello v1.Hello
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return err
	}
	log.Infof("hello from %s instance=%s v%d", hello.Mod, hello.Instance, hello.Version)

	if err := wsjson.Write(ctx, conn, v1.Envelope{Type: v1.TypeWelcome}); err != nil {
		return err
	}
	for i := range s.crowd {
		if err := wsjson.Write(ctx, conn, v1.Envelope{Type: v1.TypeJoin, Viewer: &s.crowd[i]}); err != nil {
			return err
		}
	}

	go s.act(ctx)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.observe(data)
	}
}

func (s *colonySession) observe(data []byte) {
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warnf("bad frame: %v", err)
		return
	}
	switch env.Type {
	case v1.TypeColonists:
		var c v1.Colonists
		if json.Unmarshal(data, &c) == nil {
			s.mu.Lock()
			s.roster = c.Colonists
			s.mu.Unlock()
			log.Infof("roster: %d colonists", len(c.Colonists))
		}
	case v1.TypePortrait, v1.TypeGrid:
		log.Debugf("%s (%d bytes)", env.Type, len(data))
	default:
		log.Infof("<- %s", data)
	}
}

// act makes a random viewer do something every few seconds.
func (s *colonySession) act(ctx context.Context) {
	if len(s.crowd) == 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(ext.Jitter(every, 0.5)):
		}

		v := &s.crowd[ext.RandInt(0, len(s.crowd))]
		s.mu.Lock()
		roster := s.roster
		s.mu.Unlock()

		var msg any
		switch {
		case len(roster) > 0 && ext.RandInt(0, 3) == 0:
			msg = v1.Assign{Type: v1.TypeAssign, Viewer: v, Colonist: roster[ext.RandInt(0, len(roster))].ID}
		case ext.RandInt(0, 2) == 0:
			msg = v1.Job{Type: v1.TypeJob, Viewer: v, ID: uuid.NewString(), Method: "position"}
		default:
			msg = v1.State{Type: v1.TypeState, Viewer: v, Key: "hostile", Val: json.RawMessage("true")}
		}
		if err := wsjson.Write(ctx, s.conn, msg); err != nil {
			return
		}
	}
}
