package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/models"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService exposes the admin query surface over net/rpc.
type RoomService struct {
	roomManager *room.Manager
	records     *services.RecordService
}

// NewRoomService creates a new RoomService.
func NewRoomService(roomManager *room.Manager, records *services.RecordService) *RoomService {
	return &RoomService{roomManager: roomManager, records: records}
}

type SnapshotArgs struct {
	RoomID string
}

type SnapshotReply struct {
	Snapshot models.RoomSnapshot
}

// Snapshot returns a consistent snapshot of one room.
// It must follow the net/rpc signature: exported method, exported arguments,
// second argument is a pointer, return type is error.
func (rs *RoomService) Snapshot(args *SnapshotArgs, reply *SnapshotReply) error {
	r, exists := rs.roomManager.Get(args.RoomID)
	if !exists {
		return errors.New("room not found: " + args.RoomID)
	}
	reply.Snapshot = r.Snapshot()
	return nil
}

type PlayerRecordArgs struct {
	Account string
}

type PlayerRecordReply struct {
	Data map[string]interface{}
}

// PlayerRecord returns the persisted record and aggregate for an account.
func (rs *RoomService) PlayerRecord(args *PlayerRecordArgs, reply *PlayerRecordReply) error {
	if rs.records == nil {
		return errors.New("persistence disabled")
	}
	data, err := rs.records.PlayerRecord(args.Account)
	if err != nil {
		return err
	}
	reply.Data = data
	return nil
}
