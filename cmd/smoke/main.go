// Command smoke runs an end-to-end check against a running instance:
// login, CSRF handshake, a counter sale, then a replay of the same sale
// under one idempotency key. Exit code 0 means the gate behaved.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"ezduka.app/internal/csrf"
	"ezduka.app/internal/idempotency"
)

func main() {
	base := os.Getenv("EZDUKA_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := os.Getenv("EZDUKA_DEV_EMAIL")
	password := os.Getenv("EZDUKA_DEV_PASSWORD")
	if email == "" {
		log.Fatal("EZDUKA_DEV_EMAIL is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	// Fetch the login page to receive the CSRF cookie.
	resp, err := client.Get(base + "/login")
	if err != nil {
		log.Fatalf("get /login: %v", err)
	}
	resp.Body.Close()

	token := csrfToken(client, base)
	if token == "" {
		log.Fatal("no csrf cookie issued on /login")
	}

	login := post(client, base+"/api/auth/login", token, "", map[string]any{
		"email":    email,
		"password": password,
	})
	if login.StatusCode != http.StatusOK {
		log.Fatalf("login failed: %d", login.StatusCode)
	}
	login.Body.Close()

	// Login rotates the CSRF cookie.
	token = csrfToken(client, base)

	key := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	sale := map[string]any{"amount": int64(420), "method": "CASH"}

	first := post(client, base+"/api/sales/quick", token, key, sale)
	firstBody := readAll(first)
	if first.StatusCode != http.StatusCreated {
		log.Fatalf("sale failed: %d (%s)", first.StatusCode, firstBody)
	}

	second := post(client, base+"/api/sales/quick", token, key, sale)
	secondBody := readAll(second)
	if second.StatusCode != http.StatusCreated {
		log.Fatalf("replay failed: %d (%s)", second.StatusCode, secondBody)
	}
	if !bytes.Equal(firstBody, secondBody) {
		log.Fatalf("replay body differs:\nfirst:  %s\nsecond: %s", firstBody, secondBody)
	}

	fmt.Println("smoke ok: login, csrf, sale, idempotent replay")
}

func csrfToken(client *http.Client, base string) string {
	req, err := http.NewRequest(http.MethodGet, base, nil)
	if err != nil {
		return ""
	}
	for _, c := range client.Jar.Cookies(req.URL) {
		if c.Name == csrf.CookieName {
			return c.Value
		}
	}
	return ""
}

func post(client *http.Client, url, token, idemKey string, body any) *http.Response {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(csrf.HeaderName, token)
	if idemKey != "" {
		req.Header.Set(idempotency.Header, idemKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func readAll(resp *http.Response) []byte {
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return buf.Bytes()
}
