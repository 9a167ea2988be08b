// Command chatcli is a line-oriented chat client for the InnoTech agent
// API. It logs in, attaches to (or creates) an agent session, and streams
// responses to stdout as they arrive.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/innotech-solutions/innotech-api/client/chatclient"
	"github.com/innotech-solutions/innotech-api/services"
)

func main() {
	baseURL := flag.String("url", envOr("INNOTECH_API_URL", "http://localhost:8080"), "API base URL")
	email := flag.String("email", os.Getenv("INNOTECH_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("INNOTECH_PASSWORD"), "account password")
	sessionID := flag.String("session", "", "existing session id (a new session is created when empty)")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("email and password are required (flags or INNOTECH_EMAIL / INNOTECH_PASSWORD)")
	}

	ctx := context.Background()
	client := chatclient.NewClient(*baseURL)
	if err := client.Login(ctx, *email, *password); err != nil {
		log.Fatalf("login failed: %v", err)
	}

	stdin := bufio.NewScanner(os.Stdin)

	id := *sessionID
	if id == "" {
		session, err := createSessionInteractive(ctx, client, stdin)
		if err != nil {
			log.Fatalf("failed to create session: %v", err)
		}
		fmt.Printf("Created session %s (%s)\n", session.ID, session.Title)
		id = session.ID
	}

	conv := chatclient.NewConversation(client, id)
	conv.OnChunk = func(fragment string) {
		fmt.Print(fragment)
	}
	if err := conv.LoadSession(ctx); err != nil {
		log.Fatalf("failed to load session: %v", err)
	}
	for _, msg := range conv.Messages() {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}

	fmt.Println("Type a message, or /cancel, /regen, /cost, /quit")
	repl(ctx, conv, client, stdin)
}

func repl(ctx context.Context, conv *chatclient.Conversation, client *chatclient.Client, stdin *bufio.Scanner) {
	// Stdin is read on its own goroutine so /cancel stays available while a
	// turn streams.
	lines := make(chan string)
	go func() {
		defer close(lines)
		for stdin.Scan() {
			lines <- strings.TrimSpace(stdin.Text())
		}
	}()

	turnDone := make(chan error, 1)
	inFlight := false

	finish := func(err error) {
		fmt.Println()
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			fmt.Println("(cancelled)")
		default:
			fmt.Printf("error: %v\n", err)
		}
	}

	fmt.Print("> ")
	for {
		select {
		case err := <-turnDone:
			inFlight = false
			finish(err)
			fmt.Print("> ")

		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				if !inFlight {
					fmt.Print("> ")
				}
				continue
			}

			if inFlight {
				if line == "/cancel" {
					if err := conv.CancelStream(); err != nil {
						fmt.Printf("error: %v\n", err)
					}
				} else {
					fmt.Println("a turn is still in flight (use /cancel)")
				}
				continue
			}

			switch line {
			case "/quit":
				return

			case "/cancel":
				fmt.Println("no turn is in flight")
				fmt.Print("> ")

			case "/regen":
				inFlight = true
				go func() { turnDone <- conv.RegenerateLastResponse(ctx) }()

			case "/cost":
				fmt.Printf("session cost: %d cents\n", conv.TotalCostCents())
				if usage, err := client.GetUsage(ctx); err == nil {
					fmt.Printf("account: %d sessions, %d cents, %d tokens\n",
						usage.SessionCount, usage.TotalCostCents, usage.TotalTokens)
				}
				fmt.Print("> ")

			default:
				inFlight = true
				go func(text string) { turnDone <- conv.SendMessage(ctx, text) }(line)
			}
		}
	}
}

// createSessionInteractive walks through a minimal intake form
func createSessionInteractive(ctx context.Context, client *chatclient.Client, stdin *bufio.Scanner) (*chatclient.Session, error) {
	form := services.IntakeForm{
		Timeline: "flexible",
	}

	form.DecisionContext = prompt(stdin, "What decision are you facing? ")
	first := prompt(stdin, "First alternative (name: description)? ")
	second := prompt(stdin, "Second alternative (name: description)? ")
	form.Alternatives = []services.IntakeAlternative{
		parseAlternative(first),
		parseAlternative(second),
	}
	form.Criteria = []services.IntakeCriterion{
		{Name: prompt(stdin, "Most important criterion? "), Weight: 10},
	}
	form.MissingInformation = prompt(stdin, "What information are you missing? ")

	return client.CreateSession(ctx, "arquitecto-decisiones", form)
}

func parseAlternative(line string) services.IntakeAlternative {
	name, description, found := strings.Cut(line, ":")
	if !found {
		description = name
	}
	return services.IntakeAlternative{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
	}
}

func prompt(stdin *bufio.Scanner, question string) string {
	fmt.Print(question)
	if !stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(stdin.Text())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
