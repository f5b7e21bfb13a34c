// client/main.go 简易命令行客户端，联调用
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeJoinRoom      = 101
	MsgTypeLeaveRoom     = 102
	MsgTypeKickPlayer    = 103
	MsgTypeCrossLetter   = 201
	MsgTypeUncrossLetter = 202
	MsgTypePassTurn      = 203
	MsgTypeReorder       = 204
	MsgTypeStartTraining = 205
	MsgTypeTimerStart    = 211
	MsgTypeTimerPause    = 212
	MsgTypeTimerReset    = 213
	MsgTypeRoomState     = 301
	MsgTypeToast         = 302
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:8080", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			switch msgID {
			case MsgTypeRoomState:
				log.Printf("room update: %s", message[4:])
			case MsgTypeToast:
				log.Printf("toast: %s", message[4:])
			default:
				log.Printf("message %d: %s", msgID, message[4:])
			}
		}
	}()

	var roomID, playerID string

	// Stdin loop
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		log.Println("commands: join <room> <id> <name> | leave | cross <letter> | uncross <letter> | pass <to> | order <id,id,...> | start | tstart [id] | tpause [id] | treset [id] | kick <id>")
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) == 0 {
				continue
			}

			var err error
			switch fields[0] {
			case "join":
				if len(fields) < 4 {
					log.Println("usage: join <room> <id> <name>")
					continue
				}
				roomID, playerID = fields[1], fields[2]
				err = send(c, MsgTypeJoinRoom, map[string]interface{}{
					"room_id": roomID,
					"player":  map[string]string{"id": playerID, "name": fields[3]},
				})
			case "leave":
				err = send(c, MsgTypeLeaveRoom, map[string]string{"room_id": roomID, "player_id": playerID})
			case "cross", "uncross":
				if len(fields) < 2 {
					continue
				}
				msgID := uint16(MsgTypeCrossLetter)
				if fields[0] == "uncross" {
					msgID = MsgTypeUncrossLetter
				}
				err = send(c, msgID, map[string]string{"room_id": roomID, "letter": fields[1]})
			case "pass":
				if len(fields) < 2 {
					continue
				}
				err = send(c, MsgTypePassTurn, map[string]string{"room_id": roomID, "from_id": playerID, "to_id": fields[1]})
			case "order":
				if len(fields) < 2 {
					continue
				}
				err = send(c, MsgTypeReorder, map[string]interface{}{"room_id": roomID, "order": strings.Split(fields[1], ",")})
			case "start":
				err = send(c, MsgTypeStartTraining, map[string]string{"room_id": roomID})
			case "tstart", "tpause", "treset":
				target := playerID
				if len(fields) > 1 {
					target = fields[1]
				}
				msgID := uint16(MsgTypeTimerStart)
				switch fields[0] {
				case "tpause":
					msgID = MsgTypeTimerPause
				case "treset":
					msgID = MsgTypeTimerReset
				}
				err = send(c, msgID, map[string]string{"room_id": roomID, "player_id": target})
			case "kick":
				if len(fields) < 2 {
					continue
				}
				err = send(c, MsgTypeKickPlayer, map[string]string{"room_id": roomID, "player_id": fields[1]})
			default:
				log.Printf("unknown command: %s", fields[0])
				continue
			}
			if err != nil {
				log.Printf("Send failed: %v", err)
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupted, closing connection")
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}
