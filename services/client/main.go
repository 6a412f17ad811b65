package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/fasthttp/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/HORNET-Storage/trunk-relay/lib/signing"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

type session struct {
	conn *websocket.Conn
	key  *btcec.PrivateKey
}

func main() {
	relayURL := flag.String("relay", "ws://localhost:9000", "Relay websocket url")
	privateKey := flag.String("key", "", "Private key as hex or nsec")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *relayURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *relayURL, err)
	}
	defer conn.Close()

	s := &session{conn: conn}
	if *privateKey != "" {
		if err := s.useKey(*privateKey); err != nil {
			log.Fatal(err)
		}
	}

	go s.readFrames(stop)

	RunCommandWatcher(ctx, s)
}

func RunCommandWatcher(ctx context.Context, s *session) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		var command string
		select {
		case <-ctx.Done():
			Cleanup(s)
			return
		case line, ok := <-lines:
			if !ok {
				Cleanup(s)
				return
			}
			command = line
		}

		segments := strings.SplitN(command, " ", 3)

		var err error
		switch segments[0] {
		case "":
		case "help":
			log.Println("Available Commands:")
			log.Println("generate")
			log.Println("key <hex|nsec>")
			log.Println("publish <kind> <content>")
			log.Println("req <subscription> <filter json>")
			log.Println("close <subscription>")
			log.Println("shutdown")
		case "generate":
			err = s.generate()
		case "key":
			err = s.useKey(argument(segments, 1))
		case "publish":
			err = s.publish(argument(segments, 1), argument(segments, 2))
		case "req":
			err = s.request(argument(segments, 1), argument(segments, 2))
		case "close":
			err = s.write("CLOSE", argument(segments, 1))
		case "shutdown":
			log.Println("Shutting down")
			Cleanup(s)
			return
		default:
			log.Printf("Unknown command: %s\n", command)
		}

		if err != nil {
			log.Printf("Error: %v", err)
		}
	}
}

func Cleanup(s *session) {
	s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func argument(segments []string, i int) string {
	if i < len(segments) {
		return segments[i]
	}
	return ""
}

func (s *session) generate() error {
	privateKey, err := signing.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	publicKey := signing.PublicKeyHex(privateKey)
	npub, err := signing.EncodePublicKey(publicKey)
	if err != nil {
		return err
	}

	s.key = privateKey
	fmt.Printf("private: %s\npublic: %s\nnpub: %s\n", hex.EncodeToString(privateKey.Serialize()), publicKey, npub)
	return nil
}

func (s *session) useKey(serialized string) error {
	privateKey, err := signing.DeserializePrivateKey(serialized)
	if err != nil {
		return err
	}
	s.key = privateKey
	log.Printf("Using key %s", signing.PublicKeyHex(privateKey))
	return nil
}

func (s *session) publish(kindArg, content string) error {
	if s.key == nil {
		return fmt.Errorf("no key, run generate or key first")
	}

	kind, err := strconv.ParseUint(kindArg, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid kind %q", kindArg)
	}

	event := &types.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      uint16(kind),
		Content:   content,
	}
	if err := signing.Sign(event, s.key); err != nil {
		return err
	}

	log.Printf("Publishing %s", event)
	return s.write("EVENT", event)
}

func (s *session) request(subscriptionID, filterJSON string) error {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	if filterJSON == "" {
		filterJSON = "{}"
	}

	var filter types.Filter
	if err := json.Unmarshal([]byte(filterJSON), &filter); err != nil {
		return err
	}

	return s.write("REQ", subscriptionID, &filter)
}

func (s *session) write(frame ...interface{}) error {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) readFrames(done func()) {
	defer done()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				log.Printf("Relay closed the connection: %d %s", closeErr.Code, closeErr.Text)
			} else {
				log.Printf("Connection lost: %v", err)
			}
			return
		}
		fmt.Println(string(data))
	}
}
