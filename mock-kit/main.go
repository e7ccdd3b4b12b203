// mock-kit is a local stand-in for the Kit v3 API, covering the handful
// of endpoints the bridge calls. Point the server at it with
// KIT_BASE_URL-less testing by editing the base in a dev build, or use it
// to eyeball outgoing payloads during development.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
)

var subscribeCount atomic.Int64

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	// Forms listing — also what credential validation hits
	http.HandleFunc("/v3/forms", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "API Key not present"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"forms": []map[string]any{
				{"id": 101, "name": "Free users"},
				{"id": 201, "name": "Paid users"},
			},
		})
	})

	http.HandleFunc("/v3/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tags": []map[string]any{
				{"id": 301, "name": "free"},
				{"id": 302, "name": "paid"},
			},
		})
	})

	http.HandleFunc("/v3/account", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_secret") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "API Secret not present"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name":          "Mock Account",
			"primary_email": "owner@example.com",
		})
	})

	// Form subscribe — logs the payload so outgoing requests can be inspected
	http.HandleFunc("/v3/forms/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		count := subscribeCount.Add(1)
		fmt.Printf("[#%d] POST %s | email=%v first_name=%v fields=%v tags=%v\n",
			count, r.URL.Path, payload["email"], payload["first_name"], payload["fields"], payload["tags"])

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"subscription": map[string]any{
				"id":    count,
				"state": "inactive",
				"subscriber": map[string]any{
					"id": 1000 + count,
				},
			},
		})
	})

	log.Printf("Mock Kit API starting on :%s", port)
	log.Printf("  GET  /v3/forms                -> forms list")
	log.Printf("  GET  /v3/tags                 -> tags list")
	log.Printf("  GET  /v3/account              -> account info")
	log.Printf("  POST /v3/forms/{id}/subscribe -> subscription")

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
