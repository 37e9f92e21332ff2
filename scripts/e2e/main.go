// Command e2e drives a running wa-navigator API through signed WhatsApp
// webhooks and checks the results through the admin API.
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run ./scripts/e2e              # all scenarios
//	API_BASE_URL=http://localhost:8080 go run ./scripts/e2e route-flow   # one scenario
//
// Optional: ADMIN_JWT_SECRET, WHATSAPP_APP_SECRET, WHATSAPP_VERIFY_TOKEN.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type runner struct {
	base         string
	adminToken   string
	appSecret    string
	verifyToken  string
	client       *http.Client
	passed       int
	failed       int
	messageCount int
}

type scenario struct {
	name string
	fn   func(r *runner, phone string)
}

var scenarios = []scenario{
	{"verify", (*runner).scenarioVerify},
	{"first-contact", (*runner).scenarioFirstContact},
	{"route-flow", (*runner).scenarioRouteFlow},
	{"non-text", (*runner).scenarioNonText},
	{"unknown-status", (*runner).scenarioUnknownStatus},
	{"reset", (*runner).scenarioReset},
}

func main() {
	r := &runner{
		base:        strings.TrimRight(envOr("API_BASE_URL", "http://localhost:8080"), "/"),
		appSecret:   os.Getenv("WHATSAPP_APP_SECRET"),
		verifyToken: os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		client:      &http.Client{Timeout: 15 * time.Second},
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "e2e",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte(secret))
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign admin token: %v\n", err)
			os.Exit(1)
		}
		r.adminToken = token
	}

	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}
	for _, sc := range scenarios {
		if only != "" && sc.name != only {
			continue
		}
		fmt.Printf("== %s\n", sc.name)
		sc.fn(r, testPhone())
	}

	fmt.Printf("\n%d passed, %d failed\n", r.passed, r.failed)
	if r.failed > 0 {
		os.Exit(1)
	}
}

func (r *runner) scenarioVerify(string) {
	if r.verifyToken == "" {
		fmt.Println("    SKIP: WHATSAPP_VERIFY_TOKEN not set")
		return
	}
	status, body := r.do(http.MethodGet, "/webhook?hub.mode=subscribe&hub.challenge=e2e-challenge&hub.verify_token="+r.verifyToken, nil, false)
	r.check("challenge echoed", status == http.StatusOK && body == "e2e-challenge")
	status, _ = r.do(http.MethodGet, "/webhook?hub.mode=subscribe&hub.challenge=x&hub.verify_token=wrong", nil, false)
	r.check("wrong token rejected", status == http.StatusForbidden)
}

func (r *runner) scenarioFirstContact(phone string) {
	r.check("webhook accepted", r.sendText(phone, "hello"))
	sess := r.session(phone)
	r.check("session at MAIN_MENU", sess["current_state"] == "MAIN_MENU")
	r.check("path records welcome", sess["navigation_path"] == "WELCOME -> MAIN_MENU")
	r.check("welcome reply logged", r.outboundCount(phone) == 1)
}

func (r *runner) scenarioRouteFlow(phone string) {
	r.sendText(phone, "hi")
	r.sendButton(phone, "navigation_help")
	r.check("navigation help", r.session(phone)["current_state"] == "NAVIGATION_HELP")
	r.sendButton(phone, "get_directions")
	r.check("route planning", r.session(phone)["current_state"] == "ROUTE_PLANNING")
	r.sendText(phone, "Central Station")
	sess := r.session(phone)
	r.check("route planning is sticky", sess["current_state"] == "ROUTE_PLANNING")
	r.check("self loops do not extend path",
		sess["navigation_path"] == "WELCOME -> MAIN_MENU -> NAVIGATION_HELP -> ROUTE_PLANNING")
}

func (r *runner) scenarioNonText(phone string) {
	ok := r.postWebhook(map[string]any{
		"from": phone, "id": "wamid.e2e." + uuid.NewString(), "timestamp": now(), "type": "image",
		"image": map[string]any{"id": "media-1", "mime_type": "image/jpeg"},
	}, nil)
	r.check("webhook accepted", ok)
	r.check("no session started", r.sessionStatus(phone) == http.StatusNotFound)
	r.check("no reply sent", r.outboundCount(phone) == 0)
}

func (r *runner) scenarioUnknownStatus(phone string) {
	ok := r.postWebhook(nil, map[string]any{
		"id": "wamid.e2e.unknown." + uuid.NewString(), "status": "delivered", "timestamp": now(), "recipient_id": phone,
	})
	r.check("status for unknown id accepted", ok)
}

func (r *runner) scenarioReset(phone string) {
	r.sendText(phone, "hi")
	r.sendButton(phone, "traffic_info")
	status, _ := r.do(http.MethodPost, "/api/session/"+phone+"/reset", nil, true)
	r.check("reset accepted", status == http.StatusOK)
	sess := r.session(phone)
	r.check("state is WELCOME", sess["current_state"] == "WELCOME")
	r.check("path is WELCOME", sess["navigation_path"] == "WELCOME")
}

func (r *runner) sendText(phone, text string) bool {
	return r.postWebhook(map[string]any{
		"from": phone, "id": r.nextID(), "timestamp": now(), "type": "text",
		"text": map[string]any{"body": text},
	}, nil)
}

func (r *runner) sendButton(phone, id string) bool {
	return r.postWebhook(map[string]any{
		"from": phone, "id": r.nextID(), "timestamp": now(), "type": "interactive",
		"interactive": map[string]any{
			"type":         "button_reply",
			"button_reply": map[string]any{"id": id, "title": id},
		},
	}, nil)
}

func (r *runner) postWebhook(message, status map[string]any) bool {
	value := map[string]any{"messaging_product": "whatsapp"}
	if message != nil {
		value["messages"] = []any{message}
	}
	if status != nil {
		value["statuses"] = []any{status}
	}
	body, _ := json.Marshal(map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id":      "e2e",
			"changes": []any{map[string]any{"field": "messages", "value": value}},
		}},
	})
	code, _ := r.do(http.MethodPost, "/webhook", body, false)
	return code == http.StatusOK
}

func (r *runner) session(phone string) map[string]any {
	_, body := r.do(http.MethodGet, "/api/session/"+phone, nil, true)
	var sess map[string]any
	_ = json.Unmarshal([]byte(body), &sess)
	return sess
}

func (r *runner) sessionStatus(phone string) int {
	status, _ := r.do(http.MethodGet, "/api/session/"+phone, nil, true)
	return status
}

func (r *runner) outboundCount(phone string) int {
	_, body := r.do(http.MethodGet, "/api/messages/"+phone, nil, true)
	var records []map[string]any
	_ = json.Unmarshal([]byte(body), &records)
	n := 0
	for _, rec := range records {
		if rec["direction"] == "OUTBOUND" {
			n++
		}
	}
	return n
}

func (r *runner) do(method, path string, body []byte, admin bool) (int, string) {
	req, err := http.NewRequest(method, r.base+path, bytes.NewReader(body))
	if err != nil {
		fmt.Printf("    ERROR: build request: %v\n", err)
		return 0, ""
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if r.appSecret != "" {
			mac := hmac.New(sha256.New, []byte(r.appSecret))
			mac.Write(body)
			req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}
	}
	if admin && r.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.adminToken)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		fmt.Printf("    ERROR: %s %s: %v\n", method, path, err)
		return 0, ""
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func (r *runner) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		r.passed++
		return
	}
	fmt.Printf("    FAIL: %s\n", name)
	r.failed++
}

func (r *runner) nextID() string {
	r.messageCount++
	return "wamid.e2e." + strconv.Itoa(r.messageCount) + "." + uuid.NewString()[:8]
}

// testPhone returns a fresh number per scenario so runs never share sessions.
func testPhone() string {
	return "1999" + strconv.FormatInt(time.Now().UnixNano()%10_000_000, 10)
}

func now() string { return strconv.FormatInt(time.Now().Unix(), 10) }

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
