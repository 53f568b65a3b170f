package orchestrator

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"yuzu/voicechat/internal/logging"
)

// The control service has no generated stubs; requests and replies are
// structpb.Struct so any gRPC client can drive it.
const (
	controlService = "voicechat.Control"
	submitMethod   = "/voicechat.Control/Submit"
	stateMethod    = "/voicechat.Control/State"
)

// ControlServer is the server side of voicechat.Control.
type ControlServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	State(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: controlService,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "State", Handler: stateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "voicechat/control",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Submit(ctx, req.(*structpb.Struct))
	})
}

func stateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).State(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: stateMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).State(ctx, req.(*structpb.Struct))
	})
}

// Server implements the voicechat.Control gRPC service on top of a Manager.
type Server struct {
	mgr *Manager
	log zerolog.Logger
}

// NewServer creates a new control server.
func NewServer(mgr *Manager, logger *zerolog.Logger) *Server {
	lg := logging.Nop()
	if logger != nil {
		lg = logging.Component(*logger, "orch")
	}
	return &Server{mgr: mgr, log: lg}
}

// Register attaches s to a grpc.Server.
func Register(gs *grpc.Server, s *Server) {
	gs.RegisterService(&ControlServiceDesc, s)
}

// Submit accepts {"session_id", "type", "text", "voice", "turn_kind"}. Type is
// one of open, human_turn, ai_turn, heartbeat, playback_completed.
func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := in.GetFields()
	sid := f["session_id"].GetStringValue()
	typ := f["type"].GetStringValue()

	if typ == "open" {
		sess, err := s.mgr.Open(sid)
		if err != nil {
			return nil, status.Errorf(codes.FailedPrecondition, "open: %v", err)
		}
		s.log.Info().Str("sid", sess.ID()).Msg("session_open")
		return structpb.NewStruct(map[string]any{"accepted": true, "session_id": sess.ID()})
	}

	sess, ok := s.mgr.Get(sid)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "session %q not found", sid)
	}
	var cmd Command
	switch typ {
	case "human_turn":
		text := f["text"].GetStringValue()
		if text == "" {
			return nil, status.Error(codes.InvalidArgument, "text is required")
		}
		cmd = HumanTurn{Text: text, Voice: f["voice"].GetStringValue()}
	case "ai_turn":
		cmd = AiTurn{Voice: f["voice"].GetStringValue()}
	case "heartbeat":
		cmd = HeartbeatTick{}
	case "playback_completed":
		cmd = PlaybackCompleted{Kind: TurnKind(int(f["turn_kind"].GetNumberValue()))}
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown type %q", typ)
	}
	if err := sess.Send(ctx, cmd); err != nil {
		return nil, sendStatus(err)
	}
	return structpb.NewStruct(map[string]any{"accepted": true, "session_id": sid})
}

// State returns the session snapshot.
func (s *Server) State(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sid := in.GetFields()["session_id"].GetStringValue()
	sess, ok := s.mgr.Get(sid)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "session %q not found", sid)
	}
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return nil, sendStatus(err)
	}
	hist := make([]any, 0, len(snap.History))
	for _, e := range snap.History {
		hist = append(hist, map[string]any{"speaker": e.Speaker.String(), "text": e.Text})
	}
	return structpb.NewStruct(map[string]any{
		"session_id":      snap.ID,
		"state":           snap.State.String(),
		"bridge_attached": snap.BridgeAttached,
		"deferred":        snap.Deferred,
		"last_reply":      snap.LastReply,
		"history":         hist,
	})
}

func sendStatus(err error) error {
	switch {
	case errors.Is(err, ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ControlClient calls voicechat.Control over any client connection.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, submitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) State(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, stateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
