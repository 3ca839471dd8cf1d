package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faker/faker/v4"
)

// shopgen simulates shoppers: each tick it adds a random item to the
// caller's cart, and occasionally initiates a checkout.

type addItemRequest struct {
	ProductID        string            `json:"product_id"`
	VariantID        string            `json:"variant_id,omitempty"`
	Quantity         int               `json:"quantity"`
	CustomAttributes map[string]string `json:"custom_attributes,omitempty"`
	Notes            string            `json:"notes,omitempty"`
}

type initiateRequest struct {
	Provider string `json:"provider"`
	CartID   string `json:"cart_id"`
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "Base URL of the payments API")
	token := flag.String("token", "", "Bearer token for the generated shopper")
	rps := flag.Int("rps", 5, "Requests per second")
	checkoutEvery := flag.Int("checkout-every", 10, "Initiate a checkout after this many adds")
	flag.Parse()

	log.Printf("Starting shopgen: api=%s, rps=%d", *apiURL, *rps)

	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(time.Second / time.Duration(*rps))
	defer ticker.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adds := 0
	for {
		select {
		case <-ticker.C:
			adds++
			if adds%*checkoutEvery == 0 {
				go initiateCheckout(client, *apiURL, *token)
			} else {
				go addItem(client, *apiURL, *token)
			}
		case <-ctx.Done():
			log.Println("Shutting down shopgen...")
			return
		}
	}
}

func post(client *http.Client, url, token string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

func addItem(client *http.Client, apiURL, token string) {
	reqData := addItemRequest{
		ProductID: fmt.Sprintf("prod-%03d", rand.Intn(50)),
		Quantity:  1 + rand.Intn(3),
		Notes:     faker.Sentence(),
	}
	if rand.Intn(2) == 0 {
		reqData.VariantID = fmt.Sprintf("var-%d", rand.Intn(5))
	}

	resp, err := post(client, apiURL+"/api/v1/cart/items", token, reqData)
	if err != nil {
		log.Printf("ERROR: add item failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("WARN: add item returned %d", resp.StatusCode)
	}
}

func initiateCheckout(client *http.Client, apiURL, token string) {
	// Fetch the active cart first so initiate can reference it.
	req, err := http.NewRequest(http.MethodGet, apiURL+"/api/v1/cart", nil)
	if err != nil {
		log.Printf("ERROR: build cart request: %v", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("ERROR: fetch cart failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var cart struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
		log.Printf("ERROR: decode cart: %v", err)
		return
	}

	initResp, err := post(client, apiURL+"/api/v1/payments/transactions/initiate", token, initiateRequest{
		Provider: "chapa",
		CartID:   cart.ID,
	})
	if err != nil {
		log.Printf("ERROR: initiate failed: %v", err)
		return
	}
	defer initResp.Body.Close()

	if initResp.StatusCode != http.StatusCreated {
		log.Printf("WARN: initiate returned %d", initResp.StatusCode)
	} else {
		log.Printf("INFO: checkout initiated for cart %s", cart.ID)
	}
}
