// Package netstream is a websocket-backed streamdep.Stream: block loads
// are forwarded to a remote server over a single multiplexed connection,
// correlated by request id the way the teacher's ws.Server multiplexes
// HELLO/ACT traffic over one conn per agent.
//
// Grounded on internal/transport/ws (gorilla/websocket upgrade, a writer
// goroutine plus a blocking reader loop) and internal/wire (the block
// wire codec reused verbatim as the envelope payload).
package netstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelcraft.ai/voxelblock/internal/streamdep"
	"voxelcraft.ai/voxelblock/internal/voxelbuffer"
	"voxelcraft.ai/voxelblock/internal/voxelpool"
	"voxelcraft.ai/voxelblock/internal/voxeltypes"
	"voxelcraft.ai/voxelblock/internal/wire"
)

const (
	msgLoadBlock        = "LOAD_BLOCK"
	msgBlockFound       = "BLOCK_FOUND"
	msgBlockNotFound    = "BLOCK_NOT_FOUND"
	msgInstanceQuery    = "INSTANCE_QUERY"
	msgInstanceFound    = "INSTANCE_FOUND"
	msgInstanceNotFound = "INSTANCE_NOT_FOUND"
	msgError            = "ERROR"
)

// envelope is the single message shape exchanged in both directions.
// json.Marshal base64-encodes Payload automatically, so a BLOCK_FOUND
// response carries a wire.Encode result with no extra framing.
type envelope struct {
	Type         string          `json:"type"`
	RequestID    string          `json:"request_id"`
	Origin       [3]int          `json:"origin,omitempty"`
	Lod          uint8           `json:"lod,omitempty"`
	BlockSize    int             `json:"block_size,omitempty"`
	Payload      []byte          `json:"payload,omitempty"`
	InstanceData json.RawMessage `json:"instance_data,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// RequestTimeout bounds how long LoadVoxelBlock/LoadInstanceBlocks wait
// for a response before reporting ResultError.
var RequestTimeout = 10 * time.Second

// Client is a streamdep.Stream backed by one websocket connection to a
// remote block server. Safe for concurrent use by multiple workers.
type Client struct {
	conn *websocket.Conn
	pool *voxelpool.Pool

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to a netstream server at url and starts its reader
// goroutine. pool is used to allocate decoded block buffers.
func Dial(url string, pool *voxelpool.Pool) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("netstream: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		pool:    pool,
		pending: make(map[string]chan envelope),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close terminates the underlying connection and wakes every pending
// request with ResultError.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer c.failAllPending()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		c.deliver(env)
	}
}

func (c *Client) deliver(env envelope) {
	c.pendingMu.Lock()
	ch, ok := c.pending[env.RequestID]
	if ok {
		delete(c.pending, env.RequestID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- env
	}
}

func (c *Client) failAllPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- envelope{Type: msgError, Error: "netstream: connection closed"}
	}
}

func (c *Client) roundTrip(req envelope) (envelope, error) {
	req.RequestID = uuid.NewString()
	respCh := make(chan envelope, 1)

	c.pendingMu.Lock()
	c.pending[req.RequestID] = respCh
	c.pendingMu.Unlock()

	b, err := json.Marshal(req)
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, req.RequestID)
		c.pendingMu.Unlock()
		return envelope{}, err
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, b)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, req.RequestID)
		c.pendingMu.Unlock()
		return envelope{}, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(RequestTimeout):
		c.pendingMu.Lock()
		delete(c.pending, req.RequestID)
		c.pendingMu.Unlock()
		return envelope{}, fmt.Errorf("netstream: request timed out")
	case <-c.closed:
		return envelope{}, fmt.Errorf("netstream: connection closed")
	}
}

// LoadVoxelBlock implements streamdep.Stream.
func (c *Client) LoadVoxelBlock(q *streamdep.VoxelQuery) {
	resp, err := c.roundTrip(envelope{Type: msgLoadBlock, Origin: q.OriginInVoxels, Lod: q.Lod, BlockSize: q.Buffer.Size().X})
	if err != nil {
		q.Result = streamdep.ResultError
		return
	}
	switch resp.Type {
	case msgBlockNotFound:
		q.Result = streamdep.ResultBlockNotFound
	case msgBlockFound:
		decoded, err := wire.Decode(resp.Payload, c.pool)
		if err != nil {
			q.Result = streamdep.ResultError
			return
		}
		for ch := 0; ch < voxelbuffer.MaxChannels; ch++ {
			q.Buffer.SetChannelDepth(ch, decoded.GetChannelDepth(ch))
		}
		if err := q.Buffer.CopyFrom(decoded); err != nil {
			q.Result = streamdep.ResultError
			return
		}
		q.Result = streamdep.ResultBlockFound
	default:
		q.Result = streamdep.ResultError
	}
}

// SupportsInstanceBlocks reports true: instance queries are forwarded
// over the same connection as voxel block loads.
func (c *Client) SupportsInstanceBlocks() bool { return true }

// LoadInstanceBlocks implements streamdep.Stream.
func (c *Client) LoadInstanceBlocks(queries []*streamdep.InstancesQuery) {
	for _, q := range queries {
		resp, err := c.roundTrip(envelope{Type: msgInstanceQuery, Origin: q.Position, Lod: q.Lod})
		if err != nil {
			q.Result = streamdep.ResultError
			continue
		}
		switch resp.Type {
		case msgInstanceNotFound:
			q.Result = streamdep.ResultBlockNotFound
		case msgInstanceFound:
			q.Data = resp.InstanceData
			q.Result = streamdep.ResultBlockFound
		default:
			q.Result = streamdep.ResultError
		}
	}
}

// BlockSource answers the server side of a netstream connection: the
// block and instance lookups a Server forwards client requests to.
// diskstream.VolumeStream satisfies it directly.
type BlockSource interface {
	streamdep.Stream
}

// Server upgrades incoming connections and answers LOAD_BLOCK/
// INSTANCE_QUERY requests against a BlockSource, the mirror image of
// Client. One Server can be shared across many connections; each
// connection is bound to a single BlockSource (typically one per
// volume, matching diskstream.Index.VolumeStream).
type Server struct {
	log      logger
	pool     *voxelpool.Pool
	upgrader websocket.Upgrader
}

// logger is the minimal logging surface netstream.Server needs, so the
// package doesn't have to import log directly in this file's signature.
type logger interface {
	Printf(format string, v ...any)
}

// NewServer constructs a Server. pool allocates buffers for inbound
// requests; log may be nil.
func NewServer(pool *voxelpool.Pool, log logger) *Server {
	return &Server{
		log:  log,
		pool: pool,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler upgrades the connection and serves it against source until the
// client disconnects.
func (s *Server) Handler(source BlockSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.serve(conn, source)
	}
}

func (s *Server) serve(conn *websocket.Conn, source BlockSource) {
	var writeMu sync.Mutex
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req envelope
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		go s.handle(conn, &writeMu, source, req)
	}
}

func (s *Server) handle(conn *websocket.Conn, writeMu *sync.Mutex, source BlockSource, req envelope) {
	var resp envelope
	resp.RequestID = req.RequestID

	switch req.Type {
	case msgLoadBlock:
		resp = s.handleLoadBlock(source, req)
	case msgInstanceQuery:
		resp = s.handleInstanceQuery(source, req)
	default:
		resp.Type = msgError
		resp.Error = "netstream: unknown request type"
	}

	b, err := json.Marshal(resp)
	if err != nil {
		if s.log != nil {
			s.log.Printf("netstream: marshal response: %v", err)
		}
		return
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil && s.log != nil {
		s.log.Printf("netstream: write response: %v", err)
	}
}

func (s *Server) handleLoadBlock(source BlockSource, req envelope) envelope {
	blockSize := req.BlockSize
	if blockSize <= 0 {
		blockSize = 16
	}
	buf := voxelbuffer.New(s.pool, nil, voxeltypes.Vec3i{X: blockSize, Y: blockSize, Z: blockSize})
	q := &streamdep.VoxelQuery{Buffer: buf, OriginInVoxels: req.Origin, Lod: req.Lod}
	source.LoadVoxelBlock(q)

	resp := envelope{RequestID: req.RequestID}
	switch q.Result {
	case streamdep.ResultBlockFound:
		payload, err := wire.Encode(buf)
		if err != nil {
			resp.Type = msgError
			resp.Error = err.Error()
			return resp
		}
		resp.Type = msgBlockFound
		resp.Payload = payload
	case streamdep.ResultBlockNotFound:
		resp.Type = msgBlockNotFound
	default:
		resp.Type = msgError
		resp.Error = "netstream: load failed"
	}
	return resp
}

func (s *Server) handleInstanceQuery(source BlockSource, req envelope) envelope {
	q := &streamdep.InstancesQuery{Lod: req.Lod, Position: req.Origin}
	source.LoadInstanceBlocks([]*streamdep.InstancesQuery{q})

	resp := envelope{RequestID: req.RequestID}
	switch q.Result {
	case streamdep.ResultBlockFound:
		raw, err := json.Marshal(q.Data)
		if err != nil {
			resp.Type = msgError
			resp.Error = err.Error()
			return resp
		}
		resp.Type = msgInstanceFound
		resp.InstanceData = raw
	case streamdep.ResultBlockNotFound:
		resp.Type = msgInstanceNotFound
	default:
		resp.Type = msgError
		resp.Error = "netstream: instance load failed"
	}
	return resp
}
