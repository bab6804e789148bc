package jwt_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log"

	"github.com/idtrust/rpflow/jwt"
)

func ExampleNewJSONWebKeySet() {
	ctx := context.Background()

	keySet, err := jwt.NewJSONWebKeySet(ctx, "your_jwks_url", "your_jwks_ca_pem")
	if err != nil {
		log.Fatal(err)
	}

	claims, err := keySet.VerifySignature(ctx, "signed.JWT.token")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(claims["sub"])
}

func ExamplePrivateKey_Sign() {
	ctx := context.Background()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Fatal(err)
	}
	key, err := jwt.NewPrivateKey(rsaKey, jwt.WithKeyID("rp-key-1"))
	if err != nil {
		log.Fatal(err)
	}

	token, err := key.Sign(map[string]interface{}{"iss": "your_client_id"})
	if err != nil {
		log.Fatal(err)
	}

	// the provider verifies it with the relying party's public key
	claims, err := key.KeySet().VerifySignature(ctx, token)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(claims["iss"])
	// Output: your_client_id
}
