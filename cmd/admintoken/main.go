// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Command admintoken mints a signed access token for the admin API surface.

The API server verifies tokens but carries no user database, so operator
tokens for the admin and curator routes are minted offline with this
command, against the same RSA key pair the server verifies with.

Usage:

	admintoken -key jwt_private.pem -pub jwt_public.pem -user ops-1 -role admin -ttl 24h

The signed token is printed to stdout.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/taibuivan/manhwari/internal/platform/constants"
	"github.com/taibuivan/manhwari/internal/platform/sec"
)

func main() {
	var (
		privateKeyPath = flag.String("key", "", "path to the RSA private key (PEM)")
		publicKeyPath  = flag.String("pub", "", "path to the RSA public key (PEM)")
		userID         = flag.String("user", "", "subject embedded in the token")
		username       = flag.String("name", "", "display name; defaults to the subject")
		role           = flag.String("role", string(sec.RoleAdmin), "role claim: admin, curator or member")
		timeToLive     = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *privateKeyPath == "" || *publicKeyPath == "" || *userID == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !sec.UserRole(*role).AtLeast(sec.RoleMember) {
		fmt.Fprintf(os.Stderr, "admintoken: unknown role %q\n", *role)
		os.Exit(2)
	}

	tokens, err := sec.NewTokenService(*privateKeyPath, *publicKeyPath, constants.AuthIssuer)
	if err != nil {
		fmt.Fprintln(os.Stderr, "admintoken:", err)
		os.Exit(1)
	}

	name := *username
	if name == "" {
		name = *userID
	}

	token, err := tokens.GenerateAccessToken(*userID, name, *role, *timeToLive)
	if err != nil {
		fmt.Fprintln(os.Stderr, "admintoken:", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
