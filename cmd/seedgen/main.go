package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/sand/custody-wallet/backend/internal/wallet"
)

// Prints a fresh mnemonic for WALLET_SEED.
func main() {
	bits := flag.Int("bits", 256, "entropy bits: 128, 160, 192, 224 or 256")
	flag.Parse()

	mnemonic, err := wallet.GenerateSeedPhrase(*bits)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(mnemonic)
}
