package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tazhate/countdowns/internal/client"
	"github.com/tazhate/countdowns/internal/tui"
	"golang.org/x/term"
)

func main() {
	baseURL := flag.String("url", envOr("COUNTDOWNS_API_URL", "http://localhost:8080"), "API base URL")
	username := flag.String("user", os.Getenv("COUNTDOWNS_API_USERNAME"), "API username")
	tz := flag.String("tz", "", "display timezone (defaults to local)")
	flag.Parse()

	password := os.Getenv("COUNTDOWNS_API_PASSWORD")
	if *username != "" && password == "" {
		var err error
		password, err = promptForPassword("Password for " + *username + ": ")
		if err != nil {
			fmt.Printf("Alas, there's been an error: %v\n", err)
			os.Exit(1)
		}
	}

	loc := time.Local
	if *tz != "" {
		l, err := time.LoadLocation(*tz)
		if err != nil {
			fmt.Printf("Invalid timezone %q: %v\n", *tz, err)
			os.Exit(1)
		}
		loc = l
	}

	m := tui.New(client.New(*baseURL, *username, password), loc)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func promptForPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return strings.TrimSpace(string(pass)), err
}
