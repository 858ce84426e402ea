// Command keygen generates the key material the portal needs: an Ed25519
// license signing pair, an Ed25519 session token pair, and a random scrypt
// salt. Output is printed as P4_* environment variables ready for a .env
// file. Encryption passphrases are chosen by the operator and are not
// generated here.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	licensePub, licensePriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: license key generation failed: %v\n", err)
		os.Exit(1)
	}

	tokenPub, tokenPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: token key generation failed: %v\n", err)
		os.Exit(1)
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		fmt.Fprintf(os.Stderr, "keygen: salt generation failed: %v\n", err)
		os.Exit(1)
	}

	enc := base64.StdEncoding.EncodeToString

	fmt.Println("# License signing pair (keep the private key on the issuing host only)")
	fmt.Printf("P4_CRYPTO_ED25519_PRIVATE_KEY=%s\n", enc(licensePriv))
	fmt.Printf("P4_CRYPTO_ED25519_PUBLIC_KEY=%s\n", enc(licensePub))
	fmt.Println()
	fmt.Println("# Session token pair")
	fmt.Printf("P4_AUTH_SIGNING_KEY=%s\n", enc(tokenPriv))
	fmt.Printf("P4_AUTH_VERIFY_KEY=%s\n", enc(tokenPub))
	fmt.Println()
	fmt.Println("# Key derivation salt")
	fmt.Printf("P4_CRYPTO_KEY_SALT=%s\n", enc(salt))
	fmt.Println()
	fmt.Println("# Choose your own passphrase(s), e.g.:")
	fmt.Println("# P4_CRYPTO_PASSPHRASES=1:<passphrase>")
	fmt.Println("# P4_CRYPTO_ACTIVE_KEY_VERSION=1")
}
