// ws_bridge exposes a stdio agent over a WebSocket for hosts that cannot
// spawn subprocesses (browser-based editors, remote setups). Each connection
// gets its own agent process; text messages map one-to-one onto protocol
// lines in both directions.
package main

import (
	"bufio"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", "localhost:8080", "listen address")
	flag.Parse()

	command := flag.Args()
	if len(command) == 0 {
		command = []string{"stanza"}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	http.HandleFunc("/ws", handleWS(logger, command))

	logger.Info("bridge listening", "addr", *addr, "agent", command[0])
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func handleWS(logger *slog.Logger, command []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		cmd := exec.Command(command[0], command[1:]...)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			logger.Error("stdin pipe", "err", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			logger.Error("stdout pipe", "err", err)
			return
		}
		if err := cmd.Start(); err != nil {
			logger.Error("starting agent", "err", err)
			return
		}
		defer func() {
			stdin.Close()
			cmd.Wait()
		}()

		// Agent stdout lines become WebSocket text messages verbatim; the
		// lines are already complete JSON-RPC messages.
		go func() {
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
			for scanner.Scan() {
				if err := conn.WriteMessage(websocket.TextMessage, scanner.Bytes()); err != nil {
					logger.Warn("ws write", "err", err)
					return
				}
			}
		}()

		// WebSocket messages become agent stdin lines.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("ws read", "err", err)
				}
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				if err != io.ErrClosedPipe {
					logger.Warn("stdin write", "err", err)
				}
				return
			}
		}
	}
}
