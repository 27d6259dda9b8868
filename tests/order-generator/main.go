package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type orderItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type orderRequest struct {
	Items []orderItem `json:"items"`
}

func randomString(n int) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

func generateRandomOrder() orderRequest {
	itemCount := rand.Intn(3) + 1
	items := make([]orderItem, 0, itemCount)
	for i := 0; i < itemCount; i++ {
		items = append(items, orderItem{
			ProductID: "P-" + randomString(6),
			Quantity:  rand.Intn(5) + 1,
			Price:     float64(rand.Intn(10000)+1) / 100,
		})
	}
	return orderRequest{Items: items}
}

// poisonPill occasionally ships a record with no idempotency key or
// unparseable body, exercising the DLT routing paths.
func poisonPill() (payload []byte, idempotencyKey string, hasKey bool) {
	switch rand.Intn(2) {
	case 0:
		return []byte(`{"items": not-json`), randomString(16), true
	default:
		data, _ := json.Marshal(generateRandomOrder())
		return data, "", false
	}
}

func main() {
	addr := kafka.TCP("localhost:9092")

	writer := &kafka.Writer{
		Addr:  addr,
		Topic: "orders",
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	ticker := time.NewTicker(2 * time.Second)
	for {
		select {
		case <-ticker.C:
			msg := nextMessage()
			if err := writer.WriteMessages(context.Background(), msg); err != nil {
				log.Println("failed to write message", err)
				continue
			}
			log.Println("order generated", string(msg.Key))
		case <-ctx.Done():
			return
		}
	}
}

func nextMessage() kafka.Message {
	// One in twenty deliveries is a deliberate poison pill so the DLT
	// path gets exercised alongside the happy path.
	if rand.Intn(20) == 0 {
		payload, key, hasKey := poisonPill()
		headers := []kafka.Header{}
		if hasKey {
			headers = append(headers, kafka.Header{Key: "X-Idempotency-Key", Value: []byte(key)})
		}
		return kafka.Message{Key: []byte(key), Value: payload, Headers: headers}
	}

	order := generateRandomOrder()
	data, _ := json.Marshal(order)
	key := uuid.NewString()
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "X-Idempotency-Key", Value: []byte(key)},
		},
	}
}
