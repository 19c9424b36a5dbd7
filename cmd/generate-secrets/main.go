package main

import (
	"fmt"
	"log"

	"github.com/smarttransit/booking-core/internal/utils"
)

var secretNames = []string{
	"JWT_SECRET",
	"MERCADOPAGO_WEBHOOK_SECRET",
	"IZIPAY_HMAC_KEY",
}

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret Generator for SmartTransit Booking")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateSecrets(secretNames...)
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("✅ Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file:")
	fmt.Println()
	for _, name := range secretNames {
		fmt.Printf("%s=%s\n", name, secrets[name])
	}
	fmt.Println()
	fmt.Println("⚠️  Webhook secrets must match the values configured in each gateway dashboard.")
	fmt.Println("⚠️  IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
