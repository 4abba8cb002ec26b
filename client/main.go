package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
)

type validateResponse struct {
	Data model.Identity `json:"data"`
}

type loginResponse struct {
	Data struct {
		Token    string         `json:"token"`
		Identity model.Identity `json:"identity"`
	} `json:"data"`
}

func login(apiAddr string, id model.Identity) (string, error) {
	reqBody, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	resp, err := http.Post(apiAddr+"/api/authenticate", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Errorf("login failed: %s", string(body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", err
	}
	return lr.Data.Token, nil
}

// whoami asks the api which identity token belongs to.
func whoami(apiAddr, token string) (model.Identity, error) {
	req, err := http.NewRequest(http.MethodGet, apiAddr+"/api/validate", nil)
	if err != nil {
		return model.Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return model.Identity{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.Identity{}, errors.Errorf("token rejected: %s", string(body))
	}

	var vr validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return model.Identity{}, err
	}
	return vr.Data, nil
}

// enqueue hands frame to the writer unless the connection is already gone.
func enqueue(outbox chan<- []byte, done <-chan struct{}, frame []byte) bool {
	select {
	case outbox <- frame:
		return true
	case <-done:
		return false
	}
}

// render prints a relayed frame unless it is addressed to someone else.
func render(me model.Identity, frame []byte) {
	switch string(frame) {
	case model.FramePong, model.FramePing:
		return
	}

	msg, err := model.Decode(frame)
	if err != nil {
		fmt.Printf("\r(raw) %s\n> ", frame)
		return
	}
	if !msg.IsFor(me) {
		return
	}

	switch msg.Kind {
	case model.KindReceive:
		name := "?"
		if msg.Author != nil {
			name = msg.Author.Name
		}
		fmt.Printf("\r[%s] %s: %s\n> ", msg.Timestamp.Local().Format("15:04"), name, msg.ContentText())
	case model.KindMessagesRetrieved:
		if msg.Author != nil && msg.Author.ID == me.ID {
			fmt.Print("\r--- history loaded ---\n> ")
		}
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	roomName := flag.String("room", "lobby", "room to join")
	userID := flag.Int64("id", 1, "user id for login, ignored with -token")
	userName := flag.String("name", "user1", "display name for login, ignored with -token")
	token := flag.String("token", "", "token to use instead of logging in")
	pingEvery := flag.Duration("ping", 30*time.Second, "application ping interval")
	flag.Parse()

	l := log.L()
	me := model.Identity{ID: *userID, Name: *userName}

	// 1. Login to get token, or learn who the given token is
	if *token != "" {
		id, err := whoami(*apiAddr, *token)
		if err != nil {
			l.Fatal().Err(err).Msg("token validation failed")
		}
		me = id
	} else {
		l.Info().Str("name", me.Name).Msg("logging in")
		t, err := login(*apiAddr, me)
		if err != nil {
			l.Fatal().Err(err).Msg("login failed")
		}
		*token = t
	}

	// 2. Connect to the room with the token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws/" + *roomName}
	l.Info().Str("url", u.String()).Msg("connecting")

	header := http.Header{}
	header.Add("Authorization", "Bearer "+*token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		l.Fatal().Err(err).Msg("dial failed")
	}
	defer c.Close()

	// writes come from the stdin loop, the ping loop and the interrupt path
	outbox := make(chan []byte, 16)
	done := make(chan struct{})

	// 3. Start goroutine to read messages
	go func() {
		defer close(done)
		for {
			_, frame, err := c.ReadMessage()
			if err != nil {
				l.Info().Err(err).Msg("connection closed")
				return
			}
			render(me, frame)
		}
	}()

	go func() {
		for frame := range outbox {
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				l.Error().Err(err).Msg("write failed")
				// unblocks the reader, which closes done
				_ = c.Close()
				return
			}
		}
	}()

	retrieve, _ := model.NewMessage(model.KindRetrieveMessages).Encode()
	enqueue(outbox, done, retrieve)

	go func() {
		t := time.NewTicker(*pingEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if !enqueue(outbox, done, []byte(model.FramePing)) {
					return
				}
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	quit := make(chan struct{})

	// 4. Read from stdin and send messages
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}
			if text == "/quit" {
				close(quit)
				return
			}

			msg := model.NewMessage(model.KindSend)
			msg.Author = &me
			msg.Content = model.Text(text)
			frame, err := msg.Encode()
			if err != nil {
				l.Error().Err(err).Msg("encode failed")
				continue
			}
			if !enqueue(outbox, done, frame) {
				return
			}
			fmt.Print("> ")
		}
	}()

	select {
	case <-done:
		return
	case <-interrupt:
	case <-quit:
	}

	if !enqueue(outbox, done, []byte(model.FrameClose)) {
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
