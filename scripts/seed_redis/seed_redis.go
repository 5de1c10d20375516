package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file — using system environment variables")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisGetEnv("REDIS_ADDR", "localhost:6379"),
		Password: redisGetEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer client.Close()

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	step1_tokens(ctx, client)
	step2_verify(ctx, client)

	fmt.Println("\n✅ Redis seeded successfully")
	fmt.Println("   Run next: go run ./cmd/server")
}

func step1_tokens(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 1: Seeding client tokens ───────────────")

	// Key pattern: ws:auth:{token} → identity
	// This is what the validator looks up at Level 2
	// TTL = 0 means permanent — revoke by deleting the key
	tokens := map[string]string{
		"ws:auth:dispatch_desk_token": "dispatch_desk",
		"ws:auth:ops_dashboard_token": "ops_dashboard",
		"ws:auth:mobile_app_token":    "mobile_app",
		"ws:auth:test_token":          "test_client",
	}

	for key, identity := range tokens {
		if err := client.Set(ctx, key, identity, 0).Err(); err != nil {
			log.Fatalf("Failed to set key %s: %v", key, err)
		}
		fmt.Printf("  ✓ %-35s → %s\n", key, identity)
	}
}

func step2_verify(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 2: Verification ────────────────────────")

	keys, err := client.Keys(ctx, "ws:auth:*").Result()
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d client tokens found in Redis\n", len(keys))

	val, err := client.Get(ctx, "ws:auth:test_token").Result()
	if err != nil {
		log.Fatalf("Spot check failed: %v", err)
	}
	fmt.Printf("  ✓ spot check: ws:auth:test_token → %s\n", val)
}

func redisGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
