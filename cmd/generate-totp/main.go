package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Prints the current admin TOTP code for ADMIN_TOTP_SECRET, or generates a
// new secret when none is set.
func main() {
	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "Shieldpool Admin",
			AccountName: "admin@shieldpool",
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Secret: %s\n", key.Secret())
		fmt.Printf("URL: %s\n", key.URL())
		fmt.Println("Save this secret to ADMIN_TOTP_SECRET and add the URL to an authenticator app.")
		return
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Printf("Valid for: ~30 seconds (send as X-Admin-TOTP)\n")
}
