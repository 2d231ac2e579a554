package network

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("network connection closed")

// conn is one authenticated websocket to the node. The node binds a connection to a single
// wallet, so every user address gets its own.
type conn struct {
	logger  *slog.Logger
	ws      *websocket.Conn
	address string

	sessionKey    *ecdsa.PrivateKey
	expiresAt     time.Time
	sessionID     string
	authSignature string

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan *rpcPayload
	err     error
	done    chan struct{}
}

func dial(ctx context.Context, logger *slog.Logger, url, address string) (*conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &conn{
		logger:  logger,
		ws:      ws,
		address: address,
		pending: make(map[uint64]chan *rpcPayload),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// alive reports whether the socket is up and the session has at least margin left.
func (c *conn) alive(margin time.Duration) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	return c.sessionKey != nil && time.Until(c.expiresAt) > margin
}

func (c *conn) close() {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	_ = c.ws.Close()
	<-c.done
}

// call sends method signed by key, or by the session key when key is nil, and waits for the
// response with the same id.
func (c *conn) call(ctx context.Context, method string, params any, key *ecdsa.PrivateKey) (*rpcPayload, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s params: %w", method, err)
	}

	req := &rpcPayload{
		ID:        c.nextID.Add(1),
		Method:    method,
		Params:    raw,
		Timestamp: time.Now().UnixMilli(),
	}

	if key == nil {
		key = c.sessionKey
	}
	sig, err := signPayload(req, key)
	if err != nil {
		return nil, err
	}

	return c.send(ctx, req, sig)
}

// send writes a signed request and waits for its response.
func (c *conn) send(ctx context.Context, req *rpcPayload, sigs ...string) (*rpcPayload, error) {
	ch := make(chan *rpcPayload, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(rpcMessage{Req: req, Sig: sigs})
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", req.Method, err)
	}

	select {
	case res := <-ch:
		if res.Method == methodError {
			return nil, &RPCError{Method: req.Method, Message: decodeError(res.Params)}
		}
		return res, nil
	case <-c.done:
		return nil, c.closedErr()
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", req.Method, ctx.Err())
	}
}

func (c *conn) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.err = fmt.Errorf("%w: %w", errConnClosed, err)
			c.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("Network connection lost", "address", c.address, "error", err)
			}
			return
		}

		var msg rpcMessage
		if err = json.Unmarshal(data, &msg); err != nil || msg.Res == nil {
			c.logger.Debug("Ignoring network frame", "address", c.address, "error", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.Res.ID]
		c.mu.Unlock()
		if !ok {
			// Server pushes such as balance updates carry ids nobody waits for.
			c.logger.Debug("Unsolicited network message", "address", c.address, "method", msg.Res.Method)
			continue
		}
		select {
		case ch <- msg.Res:
		default:
			c.logger.Debug("Duplicate network response", "address", c.address, "id", msg.Res.ID, "method", msg.Res.Method)
		}
	}
}

func (c *conn) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return errConnClosed
}

// signPayload signs keccak256 of the JSON encoded payload with an Ethereum style recovery id.
func signPayload(p *rpcPayload, key *ecdsa.PrivateKey) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload for signing: %w", err)
	}
	return signHash(crypto.Keccak256(data), key)
}

func signHash(hash []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
