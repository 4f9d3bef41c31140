// Package grpcweb serves browser gRPC-Web calls by relaying them to the
// native gRPC listener.
package grpcweb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	maxBody     = 1 << 20
	contentType = "application/grpc-web+proto"

	flagData    byte = 0x00
	flagTrailer byte = 0x80
)

var (
	errShortFrame = errors.New("body too short")
	errTruncated  = errors.New("incomplete frame")
)

// metadata key carrying the browser's IP to the gRPC server
const forwardedFor = "x-forwarded-for"

// headers copied from the HTTP request into outgoing gRPC metadata
var forwarded = []string{"Authorization", "X-Request-Id"}

// Bridge relays gRPC-Web requests to a gRPC server over one client conn.
type Bridge struct {
	conn    *grpc.ClientConn
	log     zerolog.Logger
	origins []string
	dial    []grpc.DialOption
}

type Option func(*Bridge)

// WithOrigins limits which browser origins get CORS headers. Without it
// every origin is echoed back.
func WithOrigins(origins ...string) Option {
	return func(b *Bridge) { b.origins = origins }
}

// WithDialOptions is applied after the insecure transport default.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(b *Bridge) { b.dial = append(b.dial, opts...) }
}

// New connects to the gRPC server at target, for example "localhost:50051".
func New(target string, log zerolog.Logger, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		log:  log,
		dial: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
	}
	for _, o := range opts {
		o(b)
	}
	conn, err := grpc.NewClient(target, b.dial...)
	if err != nil {
		return nil, fmt.Errorf("grpcweb dial %s: %w", target, err)
	}
	b.conn = conn
	return b, nil
}

func (b *Bridge) Close() error { return b.conn.Close() }

func (b *Bridge) allowOrigin(origin string) string {
	if origin == "" {
		return "*"
	}
	if len(b.origins) == 0 || slices.Contains(b.origins, "*") || slices.Contains(b.origins, origin) {
		return origin
	}
	return ""
}

func (b *Bridge) cors(h http.Header, origin string) {
	allowed := b.allowOrigin(origin)
	if allowed == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allowed)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Grpc-Web, X-User-Agent, X-Request-Id")
	h.Set("Access-Control-Expose-Headers", "Grpc-Status, Grpc-Message")
	h.Set("Access-Control-Max-Age", "86400")
	h.Add("Vary", "Origin")
}

// Handler answers preflights itself and relays POSTs.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.cors(w.Header(), r.Header.Get("Origin"))

		switch {
		case r.Method == http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case r.Method != http.MethodPost:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		case !strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc-web"):
			http.Error(w, "expected application/grpc-web", http.StatusUnsupportedMediaType)
		default:
			b.relay(w, r)
		}
	})
}

// readFrame returns the payload of the first length-prefixed message.
func readFrame(body []byte) ([]byte, error) {
	if len(body) < 5 {
		return nil, errShortFrame
	}
	n := binary.BigEndian.Uint32(body[1:5])
	if uint64(n)+5 > uint64(len(body)) {
		return nil, errTruncated
	}
	return body[5 : 5+n], nil
}

// clientIP picks the browser's address the way echo's RealIP does: the
// first X-Forwarded-For hop, then X-Real-Ip, then the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// outgoing builds the gRPC metadata for a relayed call. Every call shares
// the bridge's connection, so the browser's IP travels as x-forwarded-for.
func outgoing(r *http.Request) metadata.MD {
	md := metadata.MD{}
	for _, k := range forwarded {
		if vals := r.Header.Values(k); len(vals) > 0 {
			md.Set(strings.ToLower(k), vals...)
		}
	}
	if ip := clientIP(r); ip != "" {
		md.Set(forwardedFor, ip)
	}
	return md
}

func (b *Bridge) relay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		respond(w, nil, codes.Internal, "read body failed")
		return
	}
	payload, err := readFrame(body)
	if err != nil {
		respond(w, nil, codes.InvalidArgument, err.Error())
		return
	}

	ctx := metadata.NewOutgoingContext(r.Context(), outgoing(r))
	out := &rawMsg{}
	err = b.conn.Invoke(ctx, r.URL.Path, &rawMsg{data: payload}, out, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		st := status.Convert(err)
		b.log.Warn().Str("method", r.URL.Path).Str("code", st.Code().String()).Msg(st.Message())
		respond(w, nil, st.Code(), st.Message())
		return
	}
	b.log.Debug().Str("method", r.URL.Path).Int("bytes", len(out.data)).Msg("grpc-web relayed")
	respond(w, out.data, codes.OK, "")
}

// rawMsg carries already-encoded protobuf bytes.
type rawMsg struct{ data []byte }

// rawCodec lets the bridge relay messages without knowing their types.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) { return v.(*rawMsg).data, nil }

func (rawCodec) Unmarshal(data []byte, v any) error {
	v.(*rawMsg).data = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "raw" }

func frame(flag byte, data []byte) []byte {
	f := make([]byte, 5+len(data))
	f[0] = flag
	binary.BigEndian.PutUint32(f[1:5], uint32(len(data)))
	copy(f[5:], data)
	return f
}

func trailer(code codes.Code, msg string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "grpc-status:%d\r\n", code)
	if msg != "" {
		sb.WriteString("grpc-message:" + url.PathEscape(msg) + "\r\n")
	}
	return frame(flagTrailer, []byte(sb.String()))
}

// respond writes an optional data frame followed by the status trailer.
// gRPC-Web always answers 200 and reports failures in the trailer.
func respond(w http.ResponseWriter, data []byte, code codes.Code, msg string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if code == codes.OK {
		w.Write(frame(flagData, data))
	}
	w.Write(trailer(code, msg))
}
