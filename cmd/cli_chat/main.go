package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"chat-server/internal/domain"
	"chat-server/internal/service"
)

const heartbeatEvery = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	logger := zap.NewExample()
	defer logger.Sync()

	baseURL := strings.TrimRight(os.Getenv("CHAT_SERVER_URL"), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	api := &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}

	fmt.Println("===== Chat CLI =====")
	fmt.Println("[1] Iniciar sesion")
	fmt.Println("[2] Registrarse")
	fmt.Print("Selecciona una opcion: ")
	choice := readLine(reader)

	username := prompt(reader, "Usuario: ")
	password := prompt(reader, "Password: ")
	if choice == "2" {
		if err := api.register(username, password); err != nil {
			log.Fatalf("registro: %v", err)
		}
		fmt.Println("Usuario creado.")
	}

	tokens, err := api.login(username, password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	api.token = tokens.AccessToken

	conn, err := dial(baseURL, tokens.AccessToken)
	if err != nil {
		log.Fatalf("conectar websocket: %v", err)
	}
	defer conn.Close()

	frames := make(chan []byte, 16)
	go readFrames(conn, frames, logger)
	go printFrames(frames)

	printHelp()
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimSpace(line)
		}
	}()

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("Saliendo del chat...")
			return
		case <-heartbeat.C:
			if err := conn.WriteJSON(domain.ChatMessage{Type: domain.MessageTypeHeartbeat}); err != nil {
				logger.Warn("heartbeat failed", zap.Error(err))
				return
			}
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			if strings.EqualFold(line, "salir") || strings.EqualFold(line, "exit") {
				fmt.Println("Saliendo del chat...")
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := runCommand(conn, api, line); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		}
	}
}

func printHelp() {
	fmt.Println("---- Modo Chat ----")
	fmt.Println("  /to <userId> <texto>     mensaje privado")
	fmt.Println("  /group <groupId> <texto> mensaje de grupo")
	fmt.Println("  /ping                    heartbeat")
	fmt.Println("  /online                  usuarios en linea")
	fmt.Println("  /history <userId>        historial privado")
	fmt.Println("  salir                    terminar")
}

type command struct {
	name     string
	targetID int64
	text     string
}

var errUsage = errors.New("comando invalido, escribe /to, /group, /ping, /online o /history")

func parseCommand(line string) (command, error) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	cmd := command{name: strings.ToLower(fields[0])}
	switch cmd.name {
	case "/ping", "/online":
		return cmd, nil
	case "/history":
		if len(fields) < 2 {
			return command{}, errUsage
		}
	case "/to", "/group":
		if len(fields) < 3 || strings.TrimSpace(fields[2]) == "" {
			return command{}, errUsage
		}
		cmd.text = strings.TrimSpace(fields[2])
	default:
		return command{}, errUsage
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || id <= 0 {
		return command{}, fmt.Errorf("id invalido %q", fields[1])
	}
	cmd.targetID = id
	return cmd, nil
}

func runCommand(conn *websocket.Conn, api *apiClient, line string) error {
	cmd, err := parseCommand(line)
	if err != nil {
		return err
	}
	switch cmd.name {
	case "/ping":
		return conn.WriteJSON(domain.ChatMessage{Type: domain.MessageTypeHeartbeat})
	case "/to":
		return conn.WriteJSON(domain.ChatMessage{Type: domain.MessageTypePrivateChat, ReceiverID: &cmd.targetID, Content: cmd.text})
	case "/group":
		return conn.WriteJSON(domain.ChatMessage{Type: domain.MessageTypeGroupChat, GroupID: &cmd.targetID, Content: cmd.text})
	case "/online":
		var resp struct {
			Users []struct {
				UserID   int64  `json:"userId"`
				Username string `json:"username"`
			} `json:"users"`
		}
		if err := api.get("/api/websocket/online-users", &resp); err != nil {
			return err
		}
		for _, u := range resp.Users {
			fmt.Printf("  [%d] %s\n", u.UserID, u.Username)
		}
	case "/history":
		var resp struct {
			Messages []domain.ChatMessage `json:"messages"`
		}
		if err := api.get("/api/chat/messages/private?friendId="+strconv.FormatInt(cmd.targetID, 10), &resp); err != nil {
			return err
		}
		for _, m := range resp.Messages {
			fmt.Println(formatMessage(m))
		}
	}
	return nil
}

func dial(baseURL, token string) (*websocket.Conn, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/chat"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

func readFrames(conn *websocket.Conn, out chan<- []byte, logger *zap.Logger) {
	defer close(out)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Info("connection closed", zap.Error(err))
			}
			return
		}
		out <- raw
	}
}

func printFrames(frames <-chan []byte) {
	for raw := range frames {
		var msg domain.ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			fmt.Printf("\n<< %s\n", raw)
			continue
		}
		if msg.Type == domain.MessageTypeHeartbeat {
			continue
		}
		fmt.Printf("\n%s\n", formatMessage(msg))
	}
	fmt.Println("Conexion cerrada por el servidor.")
}

func formatMessage(m domain.ChatMessage) string {
	ts := m.Timestamp.Local().Format("15:04:05")
	switch m.Type {
	case domain.MessageTypePrivateChat:
		return fmt.Sprintf("[%s] %s > %s", ts, m.SenderName, m.Content)
	case domain.MessageTypeGroupChat:
		group := int64(0)
		if m.GroupID != nil {
			group = *m.GroupID
		}
		return fmt.Sprintf("[%s] #%d %s > %s", ts, group, m.SenderName, m.Content)
	default:
		return fmt.Sprintf("[%s] (%s) %s", ts, m.Type, m.Content)
	}
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *apiClient) register(username, password string) error {
	return c.post("/auth/register", map[string]string{"username": username, "password": password}, nil)
}

func (c *apiClient) login(username, password string) (service.TokenPair, error) {
	var resp struct {
		Tokens service.TokenPair `json:"tokens"`
	}
	err := c.post("/auth/login", map[string]string{"username": username, "password": password}, &resp)
	return resp.Tokens, err
}

func (c *apiClient) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	return readLine(reader)
}
