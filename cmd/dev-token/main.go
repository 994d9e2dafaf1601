package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/campusportal/transport-backend/internal/utils"
	"github.com/campusportal/transport-backend/pkg/jwt"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// dev-token mints access tokens shaped like the portal SSO's for local testing
func main() {
	userFlag := flag.String("user", "", "user id (random when empty)")
	email := flag.String("email", "student@campus.edu", "email claim")
	roles := flag.String("roles", "student", "comma separated roles, e.g. student,transport_admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	newSecret := flag.Bool("new-secret", false, "print a fresh JWT_SECRET and exit")
	flag.Parse()

	if *newSecret {
		secret, err := utils.GenerateSecret(32)
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Printf("JWT_SECRET=%s\n", secret)
		return
	}

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is required (run with -new-secret to create one)")
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "campusportal-sso"
	}

	userID := uuid.New()
	if *userFlag != "" {
		parsed, err := uuid.Parse(*userFlag)
		if err != nil {
			log.Fatalf("Invalid -user: %v", err)
		}
		userID = parsed
	}

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	token, err := jwt.NewService(secret, issuer, *ttl).GenerateAccessToken(userID, *email, roleList)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "user_id=%s roles=%s expires_in=%s\n", userID, strings.Join(roleList, ","), *ttl)
	fmt.Println(token)
}
