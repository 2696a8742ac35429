package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zenGate-Global/nuzum-saas/platform/go/auth/devtoken"
)

func main() {
	userID := flag.String("user-id", "", "sub/user_id claim")
	email := flag.String("email", "", "email claim")
	name := flag.String("name", "", "display name")
	role := flag.String("role", "", "free-form role label")
	userType := flag.String("user-type", "company_admin", "system_owner | company_admin | employee")
	companyID := flag.String("company-id", "", "companyId claim (required for company users)")
	issuer := flag.String("issuer", "nuzum", "iss claim; must match JWT_ISSUER")
	expiresIn := flag.Duration("expires-in", time.Hour, "token lifetime (duration, e.g. 30m, 2h)")
	unsigned := flag.Bool("unsigned", false, "emit an alg=none token for AUTH_PROVIDER=dev instead of signing with JWT_SECRET")

	flag.Parse()

	params := devtoken.Params{
		Issuer:    strings.TrimSpace(*issuer),
		UserID:    strings.TrimSpace(*userID),
		Email:     strings.TrimSpace(*email),
		Name:      strings.TrimSpace(*name),
		Role:      strings.TrimSpace(*role),
		UserType:  strings.TrimSpace(*userType),
		CompanyID: strings.TrimSpace(*companyID),
		ExpiresIn: *expiresIn,
	}

	var (
		token string
		err   error
	)
	now := time.Now().UTC()
	if *unsigned {
		token, err = devtoken.BuildUnsignedToken(params, now)
	} else {
		token, err = devtoken.BuildSignedToken(params, []byte(os.Getenv("JWT_SECRET")), now)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
