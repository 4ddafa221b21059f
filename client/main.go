package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/roomserver/models"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/rtt"
)

var (
	addr     = flag.String("addr", "localhost:8080", "server address")
	account  = flag.String("account", "", "account id, empty for guest")
	roomID   = flag.String("room", "", "room to join, empty creates a new one")
	nickname = flag.String("nickname", "player", "nickname shown to the room")
	probe    = flag.Duration("probe-interval", rtt.DefaultInterval, "latency probe interval")
	window   = flag.Int("rtt-window", rtt.DefaultWindowSize, "latency sample window size")
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, network.EncodePacket(msgID, data))
}

func main() {
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	if *account != "" {
		u.RawQuery = "account=" + url.QueryEscape(*account)
	}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	pongs := make(chan models.PongResult, 1)

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}

			switch packet.MsgID {
			case network.MsgTypePing:
				var pong models.PongResult
				if err := json.Unmarshal(packet.Data, &pong); err != nil {
					continue
				}
				// 探测串行，队列里最多只有一个等待者
				select {
				case pongs <- pong:
				default:
				}
			default:
				log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
			}
		}
	}()

	// 探测函数：发出携带时间戳的ping，等待回显或超时
	estimator := rtt.NewEstimator(func(ctx context.Context, clientPingTime int64) (int64, error) {
		if err := send(c, network.MsgTypePing, map[string]int64{"clientPingTime": clientPingTime}); err != nil {
			return 0, err
		}
		select {
		case pong := <-pongs:
			return pong.ClientPingTime, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, *probe, *window)

	if err := estimator.Start(); err != nil {
		log.Fatalf("Failed to start rtt estimator: %v", err)
	}
	defer estimator.Stop()

	// Join room on startup
	log.Println("Sending join room request...")
	if err := send(c, network.MsgTypeJoinRoom, map[string]string{
		"room_id":  *roomID,
		"nickname": *nickname,
	}); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Client started. Commands: ready | say <msg> | character <id> | hit <account> <dmg> | revive | rtt")

	// Write loop
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			estimator.Stop()
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			var err error
			switch fields[0] {
			case "ready":
				err = send(c, network.MsgTypeToggleReady, map[string]string{})
			case "say":
				err = send(c, network.MsgTypeChatMessage, map[string]string{
					"message": strings.Join(fields[1:], " "),
				})
			case "character":
				if len(fields) < 2 {
					log.Println("Usage: character <id>")
					continue
				}
				err = send(c, network.MsgTypeSetCharacter, map[string]string{"character": fields[1]})
			case "hit":
				if len(fields) < 3 {
					log.Println("Usage: hit <account> <dmg>")
					continue
				}
				dmg, convErr := strconv.ParseFloat(fields[2], 64)
				if convErr != nil {
					log.Println("Bad damage amount:", fields[2])
					continue
				}
				err = send(c, network.MsgTypeApplyDamage, map[string]interface{}{
					"targetAccount": fields[1],
					"damageAmount":  dmg,
				})
			case "revive":
				err = send(c, network.MsgTypeRevive, map[string]string{})
			case "rtt":
				if avg, ok := estimator.Average(); ok {
					fmt.Printf("average rtt: %.1fms\n", avg)
				} else {
					fmt.Println("average rtt: no samples yet")
				}
				continue
			default:
				log.Println("Unknown command:", fields[0])
				continue
			}
			if err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
