package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	orch "yuzu/voicechat/internal/orchestrator"
)

func main() {
	orchAddr := flag.String("orch", "localhost:9090", "Orchestrator gRPC address")
	sessionID := flag.String("session", "test-e2e-"+time.Now().Format("150405"), "Session ID")
	text := flag.String("text", "Hello, how are you today?", "Text to send as a human turn")
	timeout := flag.Duration("timeout", 30*time.Second, "Timeout for the turn to finish")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	// Connect to Orchestrator
	conn, err := grpc.NewClient(*orchAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial orchestrator: %v", err)
	}
	defer conn.Close()
	client := orch.NewControlClient(conn)

	fmt.Printf("=== E2E Internal Test ===\n")
	fmt.Printf("Session: %s\n", *sessionID)
	fmt.Printf("Text: %q\n\n", *text)

	// Step 1: open the session
	fmt.Println("[1] Opening session...")
	submit(ctx, client, map[string]any{"type": "open", "session_id": *sessionID})

	// Step 2: human turn (no bridge, so playback completes immediately)
	fmt.Printf("[2] Sending human turn: %q\n", *text)
	submit(ctx, client, map[string]any{"type": "human_turn", "session_id": *sessionID, "text": *text})

	// Step 3: poll until the AI reply is in history
	fmt.Println("\n[*] Waiting for the reply...")
	last := ""
	for {
		st, err := state(ctx, client, *sessionID)
		if err != nil {
			log.Fatalf("state: %v", err)
		}
		s := st.GetFields()["state"].GetStringValue()
		if s != last {
			fmt.Printf("[%s] state=%s\n", time.Now().Format("15:04:05.000"), s)
			last = s
		}
		hist := st.GetFields()["history"].GetListValue().GetValues()
		if s == orch.Idle.String() && len(hist) >= 2 {
			for _, v := range hist {
				e := v.GetStructValue().GetFields()
				fmt.Printf("    %-5s %s\n", e["speaker"].GetStringValue(), e["text"].GetStringValue())
			}
			os.Exit(0)
		}
		select {
		case <-ctx.Done():
			fmt.Println("[*] Timeout reached")
			os.Exit(1)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func submit(ctx context.Context, c *orch.ControlClient, m map[string]any) {
	in, err := structpb.NewStruct(m)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	out, err := c.Submit(ctx, in)
	if err != nil {
		log.Fatalf("submit %v: %v", m["type"], err)
	}
	fmt.Printf("    <- %v\n", out.AsMap())
}

func state(ctx context.Context, c *orch.ControlClient, sid string) (*structpb.Struct, error) {
	in, _ := structpb.NewStruct(map[string]any{"session_id": sid})
	return c.State(ctx, in)
}
