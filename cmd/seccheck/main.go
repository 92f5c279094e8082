package main

import (
	"os"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/tools/seccheck"
)

func main() {
	if err := seccheck.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
