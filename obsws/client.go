// Package obsws implements the small slice of the obs-websocket v5 protocol
// that recording control needs: authenticated session setup and
// request/response exchange. Events are read and discarded.
package obsws

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/meetscribe/meetscribe/logger"
)

// obs-websocket v5 opcodes.
const (
	opHello      = 0
	opIdentify   = 1
	opIdentified = 2
	opEvent      = 5
	opRequest    = 6
	opResponse   = 7
)

const rpcVersion = 1

// envelope is the outer obs-websocket message shape.
type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// helloData is the server's opening message. Authentication is present only
// when the server has a password set.
type helloData struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// Client is a connected, identified obs-websocket session. Methods are safe
// for sequential use; a mutex serializes concurrent requests.
type Client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int
}

// Dial connects to an obs-websocket server and completes the Hello /
// Identify / Identified handshake, answering the auth challenge when the
// server requires a password.
func Dial(ctx context.Context, url, password string) (*Client, error) {
	log := logger.WithComponent("obsws")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	var hello helloData
	if err := readMessage(conn, opHello, &hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	log.Debug("connected", "obsVersion", hello.OBSWebSocketVersion, "rpcVersion", hello.RPCVersion)

	identify := identifyData{RPCVersion: rpcVersion}
	if hello.Authentication != nil {
		if password == "" {
			conn.Close()
			return nil, fmt.Errorf("server requires authentication but no password configured")
		}
		identify.Authentication = authResponse(password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}
	if err := writeMessage(conn, opIdentify, identify); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	var identified struct {
		NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
	}
	if err := readMessage(conn, opIdentified, &identified); err != nil {
		conn.Close()
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	return &Client{conn: conn}, nil
}

// authResponse computes the v5 challenge response:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secretSum := sha256.Sum256([]byte(password + salt))
	secret := base64.StdEncoding.EncodeToString(secretSum[:])
	authSum := sha256.Sum256([]byte(secret + challenge))
	return base64.StdEncoding.EncodeToString(authSum[:])
}

// Request sends a request and waits for its response, skipping any event
// messages that arrive in between. The returned payload is the raw
// responseData object.
func (c *Client) Request(requestType string, data any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := fmt.Sprintf("req-%d", c.nextID)

	if err := writeMessage(c.conn, opRequest, requestData{
		RequestType: requestType,
		RequestID:   id,
		RequestData: data,
	}); err != nil {
		return nil, fmt.Errorf("%s request failed: %w", requestType, err)
	}

	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return nil, fmt.Errorf("%s request failed: %w", requestType, err)
		}
		if env.Op != opResponse {
			continue
		}
		var resp responseData
		if err := json.Unmarshal(env.D, &resp); err != nil {
			return nil, fmt.Errorf("%s response malformed: %w", requestType, err)
		}
		if resp.RequestID != id {
			continue
		}
		if !resp.RequestStatus.Result {
			return nil, fmt.Errorf("%s rejected: code %d: %s", requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		return resp.ResponseData, nil
	}
}

// Close shuts the websocket down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func writeMessage(conn *websocket.Conn, op int, data any) error {
	d, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(envelope{Op: op, D: d})
}

// readMessage reads until a message with the wanted opcode arrives, skipping
// events.
func readMessage(conn *websocket.Conn, wantOp int, out any) error {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		if env.Op == opEvent {
			continue
		}
		if env.Op != wantOp {
			return fmt.Errorf("unexpected opcode %d (want %d)", env.Op, wantOp)
		}
		return json.Unmarshal(env.D, out)
	}
}
