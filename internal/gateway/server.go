package gateway

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"

	"github.com/playhall/game-room-gateway/internal/database"
	"github.com/playhall/game-room-gateway/internal/stats"
)

const namespace = "/game-rooms"

type stopReq struct {
	done chan struct{}
}

type transitionReq struct {
	roomId int
	status string
}

// GatewayServer owns the connection registry, the game-type counter
// subscriptions, and the map of live room actors. Everything it owns
// is mutated only inside Run's loop.
type GatewayServer struct {
	log               *log.Logger
	db                database.GameRoomRepository
	stats             stats.StatsProvider
	clients           map[*Client]struct{}
	clientsLock       sync.Mutex
	gameTypeSubs      map[int]map[*Client]struct{}
	rooms             map[int]*Room
	RegisterChan      chan *Client
	deRegisterChan    chan *Client
	roomReqChan       chan *ClientMessage
	countsSubChan     chan *ClientMessage
	countsDirtyChan   chan int
	unloadRoomChan    chan int
	transitionReqChan chan transitionReq
	stop              chan stopReq
}

func NewGatewayServer(logger *log.Logger, db database.GameRoomRepository, su stats.StatsProvider) (*GatewayServer, error) {
	gw := &GatewayServer{
		log:               logger,
		db:                db,
		stats:             su,
		clients:           make(map[*Client]struct{}),
		gameTypeSubs:      make(map[int]map[*Client]struct{}),
		rooms:             make(map[int]*Room),
		RegisterChan:      make(chan *Client, 64),
		deRegisterChan:    make(chan *Client, 64),
		roomReqChan:       make(chan *ClientMessage, 256),
		countsSubChan:     make(chan *ClientMessage, 256),
		countsDirtyChan:   make(chan int, 256),
		unloadRoomChan:    make(chan int, 64),
		transitionReqChan: make(chan transitionReq, 64),
		stop:              make(chan stopReq),
	}

	su.RegisterMetric("NumConnections")
	su.RegisterMetric("NumActiveRooms")
	su.RegisterMetric("TotalJoinsAdmitted")
	su.RegisterMetric("TotalBroadcasts")

	return gw, nil
}

func (gw *GatewayServer) Run() {
	for {
		select {
		case c := <-gw.RegisterChan:
			gw.addClient(c)
		case c := <-gw.deRegisterChan:
			gw.removeClient(c)
		case msg := <-gw.countsSubChan:
			gw.handleCountsSubscribe(msg)
		case gameTypeId := <-gw.countsDirtyChan:
			gw.broadcastCounts(gameTypeId)
		case msg := <-gw.roomReqChan:
			gw.routeToRoom(msg)
		case roomId := <-gw.unloadRoomChan:
			gw.unloadRoom(roomId)
		case req := <-gw.transitionReqChan:
			if room, ok := gw.rooms[req.roomId]; ok {
				select {
				case room.transitionChan <- req.status:
				default:
					gw.log.Printf("transitionChan full on room %d", req.roomId)
				}
			}
		case req := <-gw.stop:
			gw.log.Println("shutting down rooms")
			for _, r := range gw.rooms {
				done := make(chan struct{})
				r.exit <- exitReq{done: done}
				<-done
			}
			close(req.done)
			return
		}
	}
}

// addClient registers the connection and greets it with the handshake
// event carrying its client id and resolved identity.
func (gw *GatewayServer) addClient(c *Client) {
	gw.clientsLock.Lock()
	gw.clients[c] = struct{}{}
	gw.clientsLock.Unlock()
	gw.stats.Incr("NumConnections")

	var userId *int
	if c.user.Id != 0 {
		userId = &c.user.Id
	}

	c.queueMessage(&ServerMessage{
		Connected: &Connected{
			Message:   "connected to game rooms gateway",
			ClientId:  c.id,
			Namespace: namespace,
			UserId:    userId,
		},
	})
}

// removeClient is idempotent: deregistering an unknown client is a
// no-op, and removal never blocks delivery to other connections.
func (gw *GatewayServer) removeClient(c *Client) {
	gw.clientsLock.Lock()
	_, ok := gw.clients[c]
	delete(gw.clients, c)
	gw.clientsLock.Unlock()

	if !ok {
		return
	}
	gw.stats.Decr("NumConnections")

	for gameTypeId, subs := range gw.gameTypeSubs {
		delete(subs, c)
		if len(subs) == 0 {
			delete(gw.gameTypeSubs, gameTypeId)
		}
	}
}

// handleCountsSubscribe registers the game-type subscription and
// immediately answers with the current counts snapshot.
func (gw *GatewayServer) handleCountsSubscribe(msg *ClientMessage) {
	gameTypeId := msg.SubscribeRoomCounts.GameTypeId

	subs, ok := gw.gameTypeSubs[gameTypeId]
	if !ok {
		subs = make(map[*Client]struct{})
		gw.gameTypeSubs[gameTypeId] = subs
	}
	subs[msg.client] = struct{}{}

	msg.client.queueMessage(&ServerMessage{GameRoomCounts: gw.countsSnapshot(gameTypeId)})
}

// countsSnapshot reads the aggregate for a game type. An unknown game
// type is a valid steady state and yields all-zero counts.
func (gw *GatewayServer) countsSnapshot(gameTypeId int) *GameRoomCounts {
	counts, err := gw.db.CountSessionsByGameType(gameTypeId)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		gw.log.Println("CountSessionsByGameType:", err)
		return &GameRoomCounts{LastUpdated: Now(), Error: ErrInternalError}
	}

	return &GameRoomCounts{
		Pending:     counts.Pending,
		Running:     counts.Running,
		Out:         counts.Out,
		End:         counts.End,
		Total:       counts.Total(),
		LastUpdated: Now(),
	}
}

func (gw *GatewayServer) broadcastCounts(gameTypeId int) {
	subs := gw.gameTypeSubs[gameTypeId]
	if len(subs) == 0 {
		return
	}

	snapshot := gw.countsSnapshot(gameTypeId)
	for c := range subs {
		c.queueMessage(&ServerMessage{GameRoomCounts: snapshot})
	}
	gw.stats.Incr("TotalBroadcasts")
}

// routeToRoom forwards a room-addressed message to its actor, loading
// the room from the repository on first touch.
func (gw *GatewayServer) routeToRoom(msg *ClientMessage) {
	roomId, ok := msg.roomId()
	if !ok {
		msg.client.queueMessage(errorResultFor(msg, ErrInvalidMessage))
		return
	}

	room, ok := gw.rooms[roomId]
	if !ok {
		dbRoom, err := gw.db.GetRoomById(roomId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				msg.client.queueMessage(errorResultFor(msg, ErrRoomNotFound))
			} else {
				gw.log.Println("GetRoomById:", err)
				msg.client.queueMessage(errorResultFor(msg, ErrInternalError))
			}
			return
		}

		room, err = newRoom(gw, dbRoom)
		if err != nil {
			gw.log.Printf("loading room %d: %v", roomId, err)
			msg.client.queueMessage(errorResultFor(msg, ErrInternalError))
			return
		}

		gw.rooms[roomId] = room
		gw.stats.Incr("NumActiveRooms")
		go room.start()
	}

	select {
	case room.reqChan <- msg:
	default:
		gw.log.Printf("reqChan full on room %d", roomId)
		msg.client.queueMessage(errorResultFor(msg, ErrTooBusy))
	}
}

func (gw *GatewayServer) unloadRoom(roomId int) {
	r, ok := gw.rooms[roomId]
	if !ok {
		return
	}

	gw.log.Printf("unloading room %d", roomId)
	delete(gw.rooms, roomId)
	gw.stats.Decr("NumActiveRooms")

	done := make(chan struct{})
	r.exit <- exitReq{done: done}
	<-done
}

// TransitionSession hands an externally triggered status change to a
// room's actor, so admin tooling and the room's own timer share one
// transition path. The request goes through the server loop because
// the rooms map belongs to it.
func (gw *GatewayServer) TransitionSession(roomId int, status string) bool {
	select {
	case gw.transitionReqChan <- transitionReq{roomId: roomId, status: status}:
		return true
	default:
		return false
	}
}

func (gw *GatewayServer) RegisterClient(c *Client) {
	gw.RegisterChan <- c
}

func (gw *GatewayServer) Shutdown(ctx context.Context) error {
	gw.log.Println("received shutdown signal")

	gw.clientsLock.Lock()
	for c := range gw.clients {
		c.stopClient()
	}
	gw.clientsLock.Unlock()

	req := stopReq{done: make(chan struct{})}
	select {
	case gw.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
