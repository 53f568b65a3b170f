package orchestrator

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func startControl(t *testing.T, m *Manager) *ControlClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	Register(gs, NewServer(m, nil))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewControlClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestControlHumanTurnAndState(t *testing.T) {
	m := NewManager(Options{LLM: &fakeLLM{}, TTS: &fakeTTS{}})
	defer m.CloseAll()
	c := startControl(t, m)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := c.Submit(ctx, mustStruct(t, map[string]any{"type": "open", "session_id": "g1"}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if out.GetFields()["session_id"].GetStringValue() != "g1" {
		t.Fatalf("unexpected open reply %v", out)
	}
	if _, err := c.Submit(ctx, mustStruct(t, map[string]any{"type": "human_turn", "session_id": "g1", "text": "hello"})); err != nil {
		t.Fatalf("human_turn: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := c.State(ctx, mustStruct(t, map[string]any{"session_id": "g1"}))
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		f := st.GetFields()
		hist := f["history"].GetListValue().GetValues()
		if f["state"].GetStringValue() == "IDLE" && len(hist) == 2 {
			last := hist[1].GetStructValue().GetFields()
			if last["speaker"].GetStringValue() != "AI" || last["text"].GetStringValue() != "reply to hello" {
				t.Fatalf("unexpected last entry %v", last)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("turn never finished: %v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestControlErrors(t *testing.T) {
	m := NewManager(Options{LLM: &fakeLLM{}, TTS: &fakeTTS{}})
	defer m.CloseAll()
	c := startControl(t, m)
	ctx := context.Background()

	_, err := c.Submit(ctx, mustStruct(t, map[string]any{"type": "human_turn", "session_id": "nope", "text": "x"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	_, _ = m.Open("s")
	_, err = c.Submit(ctx, mustStruct(t, map[string]any{"type": "dance", "session_id": "s"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	_, err = c.Submit(ctx, mustStruct(t, map[string]any{"type": "human_turn", "session_id": "s"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for empty text, got %v", err)
	}
	_, err = c.State(ctx, mustStruct(t, map[string]any{"session_id": "nope"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
