package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"shieldpool/internal/config"
	"shieldpool/internal/handlers"

	"github.com/ethereum/go-ethereum/common"
)

// Issues a caller token without the challenge/login round trip, for
// exercising the API from scripts. Usage: generate-jwt <address>
func main() {
	if len(os.Args) != 2 || !common.IsHexAddress(os.Args[1]) {
		fmt.Println("Usage: generate-jwt <0x-address>")
		os.Exit(2)
	}
	address := common.HexToAddress(os.Args[1])

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	auth := config.AppConfig.Auth

	now := time.Now()
	expiresAt := now.Add(time.Duration(auth.TokenTTL) * time.Second)
	token, err := handlers.GenerateJWTToken([]byte(auth.JWTSecret), auth.Issuer, address, now, expiresAt)
	if err != nil {
		log.Fatalf("Error generating token: %v", err)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Printf("  Caller:  %s\n", address.Hex())
	fmt.Printf("  Issuer:  %s\n", auth.Issuer)
	fmt.Printf("  Expires: %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Printf("export JWT_TOKEN='%s'\n", token)
}
