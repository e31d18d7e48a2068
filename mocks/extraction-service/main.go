// Command extraction-service simulates the document extraction collaborator.
// It walks one session through the document pipeline by posting domain events
// to the onboarding engine, pausing between steps. Useful for exercising the
// engine end to end without the real pipeline.
//
// Usage:
//
//	go run . -engine http://localhost:8080 -candidate cand-42
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

var (
	engineURL  = flag.String("engine", "http://localhost:8080", "base URL of the onboarding engine")
	signingKey = flag.String("signing-key", "dev-secret-change-in-production", "JWT signing key the engine is configured with")
	candidate  = flag.String("candidate", "", "candidate id (generated when empty)")
	sessionID  = flag.String("session", "", "session id (generated when empty)")
	delay      = flag.Duration("delay", 500*time.Millisecond, "pause between events")
	failAt     = flag.String("fail-at", "", "post ValidationFailed instead of ConfirmationCompleted")
)

func main() {
	flag.Parse()

	if *candidate == "" {
		*candidate = "cand-" + randomID()
	}
	if *sessionID == "" {
		*sessionID = "sess-" + randomID()
	}

	token, err := mintToken(*signingKey, "extraction-service", "COLLABORATOR", time.Hour)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}

	events := []struct {
		name string
		data map[string]any
	}{
		{"OnboardingStarted", nil},
		{"DocumentsUploaded", map[string]any{"documentCount": 4}},
		{"ExtractionCompleted", map[string]any{"fieldsExtracted": 17, "confidence": 0.93}},
	}
	if *failAt != "" {
		events = append(events, struct {
			name string
			data map[string]any
		}{"ValidationFailed", map[string]any{"reason": *failAt}})
	} else {
		events = append(events, struct {
			name string
			data map[string]any
		}{"ConfirmationCompleted", nil})
	}

	log.Printf("driving session %s for candidate %s against %s", *sessionID, *candidate, *engineURL)
	for i, event := range events {
		if i > 0 {
			time.Sleep(*delay)
		}
		state, err := postEvent(token, event.name, event.data)
		if err != nil {
			log.Fatalf("%s: %v", event.name, err)
		}
		log.Printf("%-22s -> %s", event.name, state)
	}
}

func postEvent(token, name string, data map[string]any) (string, error) {
	body := map[string]any{
		"event":        name,
		"session_id":   *sessionID,
		"candidate_id": *candidate,
	}
	if data != nil {
		body["data"] = data
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, *engineURL+"/events", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("engine returned %d: %s", resp.StatusCode, raw)
	}

	var session struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(raw, &session); err != nil {
		return "", err
	}
	return session.State, nil
}

// mintToken signs a minimal HS256 JWT so this mock has no dependencies.
func mintToken(key, actor, actorRole string, ttl time.Duration) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	now := time.Now()
	claims := map[string]any{
		"actor":      actor,
		"actor_role": actorRole,
		"iss":        "sebenza",
		"aud":        "sebenza-api",
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(headerJSON) + "." + enc.EncodeToString(claimsJSON)

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(signingInput))
	return signingInput + "." + enc.EncodeToString(mac.Sum(nil)), nil
}

func randomID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
