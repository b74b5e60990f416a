// Command karen-chat is a line-oriented terminal client for the karen API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/m4s1t4/karen/pkg/client"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "karen server base URL")
	apiKey := flag.String("api-key", os.Getenv("KAREN_API_KEY"), "API key (or KAREN_API_KEY)")
	chatID := flag.String("chat", "", "resume an existing chat instead of starting a new one")
	flag.Parse()

	var opts []client.Option
	if *apiKey != "" {
		opts = append(opts, client.WithAPIKey(*apiKey))
	}
	c := client.New(*baseURL, opts...)

	ctx := context.Background()
	id := *chatID
	if id == "" {
		chat, err := c.StartChat(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "start chat: %v\n", err)
			os.Exit(1)
		}
		id = chat.ID
	}

	fmt.Printf("karen chat %s\n", id)
	fmt.Println("commands: /history, /upload <file>, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/history":
			printHistory(ctx, c, id)
		case strings.HasPrefix(line, "/upload "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/upload "))
			upload(ctx, c, id, path)
		default:
			send(ctx, c, &id, line)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}
}

func send(ctx context.Context, c *client.Client, id *string, message string) {
	ans, err := c.SendMessage(ctx, *id, message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
		return
	}
	// The server may have replaced a stale chat with a fresh one.
	if ans.ChatID != "" && ans.ChatID != *id {
		fmt.Printf("(continuing in new chat %s)\n", ans.ChatID)
		*id = ans.ChatID
	}

	fmt.Printf("\n%s\n", ans.Response)
	for _, cit := range ans.Citations {
		if cit.Page > 0 {
			fmt.Printf("  [%d] %s, page %d (relevance %.2f)\n", cit.Ordinal, cit.Source, cit.Page, cit.Similarity)
		} else {
			fmt.Printf("  [%d] %s (relevance %.2f)\n", cit.Ordinal, cit.Source, cit.Similarity)
		}
	}
	fmt.Println()
}

func printHistory(ctx context.Context, c *client.Client, id string) {
	msgs, err := c.History(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return
	}
	for _, m := range msgs {
		who := "you"
		if m.Role == "assistant" {
			who = "karen"
		}
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), who, m.Content)
	}
}

func upload(ctx context.Context, c *client.Client, id, path string) {
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: /upload <file>")
		return
	}
	up, err := c.UploadDocument(ctx, id, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upload: %v\n", err)
		return
	}
	fmt.Printf("ingested %s: %d/%d chunks stored (%s)\n",
		up.FileName, up.StoredChunks, up.NumChunks, up.Status)
}
