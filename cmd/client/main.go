package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/akorchagin/stash/internal/client/api"
	"github.com/akorchagin/stash/internal/client/cache"
	"github.com/akorchagin/stash/internal/client/engine"
	"github.com/akorchagin/stash/internal/client/storage"
	"github.com/akorchagin/stash/internal/models"
	"go.uber.org/zap"
)

var (
	version   string
	buildDate string
)

// repl runs the interactive shell loop, accepting commands to manage stashed items.
func repl(eng *engine.Engine) {
	scanner := bufio.NewScanner(os.Stdin)

	eng.OnSessionEnd(func(reason string) {
		fmt.Printf("\n%s — please log in again\n", reason)
	})

	for {
		fmt.Print("stash> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		ctx := context.Background()

		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, signup <email> <password>, login <email> <password>, logout,")
			fmt.Println("  add <kind> <content...>, list, get <id>, edit <id> <content...>, delete <id>,")
			fmt.Println("  done <id>, pin <id>, done-all, clear-done, exit")
		case "signup", "login":
			if len(args) < 3 {
				fmt.Printf("Usage: %s <email> <password>\n", args[0])
				continue
			}
			var err error
			if args[0] == "signup" {
				err = eng.Signup(ctx, args[1], args[2])
			} else {
				err = eng.Login(ctx, args[1], args[2])
			}
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Printf("Logged in as %s (%d items)\n", eng.User().Email, len(eng.Items()))
		case "logout":
			eng.Logout()
			fmt.Println("Logged out")
		case "add":
			if len(args) < 3 {
				fmt.Println("Usage: add <kind> <content...>")
				continue
			}
			it := eng.Create(draftItem(args[1], strings.Join(args[2:], " ")))
			fmt.Printf("Stashed %s\n", it.ID)
		case "list":
			items := eng.Items()
			if eng.State() != engine.StateAuthenticated {
				fmt.Println("Not logged in; new items are kept locally until you log in")
			}
			for _, it := range items {
				marker := " "
				if it.Completed {
					marker = "x"
				}
				pin := ""
				if it.Pinned {
					pin = " *"
				}
				fmt.Printf("[%s] %s (%s)%s %s\n", marker, it.ID, it.Kind, pin, it.Content)
			}
		case "get":
			if len(args) < 2 {
				fmt.Println("Usage: get <id>")
				continue
			}
			found := false
			for _, it := range eng.Items() {
				if it.ID == args[1] {
					b, _ := json.MarshalIndent(it, "", "  ")
					fmt.Println(string(b))
					found = true
					break
				}
			}
			if !found {
				fmt.Println("Item not found")
			}
		case "edit":
			if len(args) < 3 {
				fmt.Println("Usage: edit <id> <content...>")
				continue
			}
			content := strings.Join(args[2:], " ")
			if eng.Update(args[1], itemContentPatch(content)) {
				fmt.Println("Item updated")
			} else {
				fmt.Println("Item not found")
			}
		case "delete":
			if len(args) < 2 {
				fmt.Println("Usage: delete <id>")
				continue
			}
			if eng.Delete(args[1]) {
				fmt.Println("Item deleted")
			} else {
				fmt.Println("Item not found")
			}
		case "done":
			if len(args) < 2 {
				fmt.Println("Usage: done <id>")
				continue
			}
			if !eng.ToggleCompleted(args[1]) {
				fmt.Println("Item not found")
			}
		case "pin":
			if len(args) < 2 {
				fmt.Println("Usage: pin <id>")
				continue
			}
			if !eng.TogglePinned(args[1]) {
				fmt.Println("Item not found")
			}
		case "done-all":
			fmt.Printf("Completed %d items\n", eng.CompleteAll())
		case "clear-done":
			fmt.Printf("Removed %d completed items\n", eng.ClearCompleted())
		case "exit":
			eng.Wait()
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func main() {
	var (
		baseURL      string
		dataDir      string
		cacheVersion string
		manifest     string
		showVer      bool
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&dataDir, "data", defaultDataDir(), "directory for local state")
	flag.StringVar(&cacheVersion, "cache-version", "v1", "asset cache generation tag")
	flag.StringVar(&manifest, "manifest", "", "comma-separated asset URLs to pre-cache")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("Stash Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.NewLocalStore(dataDir)
	if err != nil {
		log.Fatal(err)
	}

	apiHost := ""
	if u, err := url.Parse(baseURL); err == nil {
		apiHost = u.Hostname()
	}
	cacheStore, err := cache.NewStore(filepath.Join(dataDir, "cache"))
	if err != nil {
		log.Fatal(err)
	}
	assets := splitManifest(manifest)
	rootDoc := ""
	if len(assets) > 0 {
		// The first manifest entry doubles as the offline navigation fallback.
		rootDoc = assets[0]
	}
	interceptor := cache.NewInterceptor(cache.Config{
		Version:      cacheVersion,
		Manifest:     assets,
		RootDocument: rootDoc,
		BypassHosts:  []string{apiHost},
	}, cacheStore, nil, logger)
	if manifest != "" {
		if err := interceptor.Install(context.Background()); err != nil {
			logger.Warn("asset pre-cache failed", zap.Error(err))
		}
	}
	if err := interceptor.Activate(); err != nil {
		log.Fatal(err)
	}

	httpClient := &http.Client{Transport: interceptor}
	client := api.New(baseURL, httpClient)
	eng := engine.New(client, store, logger)

	if err := eng.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	if eng.State() == engine.StateAuthenticated {
		fmt.Printf("Welcome back, %d items synced\n", len(eng.Items()))
	}

	repl(eng)
}

// draftItem builds a new item from REPL input, falling back to a plain
// note for unrecognized kinds.
func draftItem(kind, content string) models.Item {
	switch models.ItemKind(kind) {
	case models.KindNote, models.KindLink, models.KindPhoto, models.KindCard:
	default:
		content = strings.TrimSpace(kind + " " + content)
		kind = string(models.KindNote)
	}
	return models.Item{Kind: kind, Content: content}
}

func itemContentPatch(content string) models.ItemPatch {
	return models.ItemPatch{Content: &content}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stash"
	}
	return filepath.Join(home, ".stash")
}

func splitManifest(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
