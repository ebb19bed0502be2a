package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/playhall/game-room-gateway/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is one websocket connection. user.Id is zero for anonymous
// connections, which may subscribe but not join.
type Client struct {
	id        string
	conn      *websocket.Conn
	gw        *GatewayServer
	log       *log.Logger
	user      types.User
	send      chan *ServerMessage
	rooms     map[int]*Room
	roomsLock sync.RWMutex
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewClient(id string, user types.User, conn *websocket.Conn, gw *GatewayServer, l *log.Logger) *Client {
	return &Client{
		id:    id,
		conn:  conn,
		gw:    gw,
		log:   l,
		user:  user,
		send:  make(chan *ServerMessage, 256),
		rooms: make(map[int]*Room),
		stop:  make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write pump for %q exiting", c.id)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("read pump for %q exiting", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(errorResultFor(&msg, ErrInvalidMessage))
			continue
		}

		msg.client = c
		c.dispatch(&msg)
	}
}

// dispatch routes an inbound message to the gateway loop. Room
// addressed messages go through roomReqChan so the server can load
// the room actor on first touch.
func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.SubscribeRoomCounts != nil:
		select {
		case c.gw.countsSubChan <- msg:
		default:
			c.log.Println("countsSubChan full")
			c.queueMessage(errorResultFor(msg, ErrTooBusy))
		}
	case msg.SubscribeCurrentSession != nil, msg.GameJoinRoom != nil,
		msg.JoinWithEarlyJoiners != nil, msg.GetEarlyJoinersList != nil:
		select {
		case c.gw.roomReqChan <- msg:
		default:
			c.log.Println("roomReqChan full")
			c.queueMessage(errorResultFor(msg, ErrTooBusy))
		}
	default:
		c.queueMessage(errorResultFor(msg, ErrInvalidMessage))
	}
}

// queueMessage never blocks: a client whose send buffer is full is
// skipped rather than stalling the sender.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for client %q, dropping message", c.id)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.gw.deRegisterChan <- c
	c.leaveAllRooms()
	c.stopClient()
}

// leaveAllRooms delivers a leave to every room the client subscribed
// to. The send waits out a full channel rather than dropping: a lost
// leave would park the client in the room's subscriber set for good.
func (c *Client) leaveAllRooms() {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	for _, room := range c.rooms {
		select {
		case room.leaveChan <- c:
		case <-room.done:
		case <-time.After(time.Second):
			c.log.Printf("timed out leaving room %d", room.id)
		}
	}
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.id] = r
}

func (c *Client) delRoom(id int) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}
