// main.go - Admin control tool for Veilytics
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"veilytics/internal"
	"veilytics/internal/query"
	"veilytics/internal/sites"
)

// Command is implemented by every subcommand.
type Command interface {
	Name() string
	Description() string
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

var commands = []Command{
	&AddSiteCommand{},
	&ListSitesCommand{},
	&TokenCommand{},
	&StatsCommand{},
	&HelpCommand{},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	defer func() {
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	name := os.Args[1]
	for _, cmd := range commands {
		if cmd.Name() == name {
			if err := cmd.Execute(context.Background(), app, os.Args[2:]); err != nil {
				log.Fatalf("%s failed: %v", name, err)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	printUsage()
	os.Exit(1)
}

func printUsage() {
	fmt.Println("Usage: veilctl <command> [args]")
	fmt.Println()
	for _, cmd := range commands {
		fmt.Printf("  %-12s %s\n", cmd.Name(), cmd.Description())
	}
}

// AddSiteCommand registers a site for an owner.
type AddSiteCommand struct{}

func (c *AddSiteCommand) Name() string        { return "add-site" }
func (c *AddSiteCommand) Description() string { return "Register a site: add-site <owner> <domain>" }

func (c *AddSiteCommand) Execute(_ context.Context, app *internal.Application, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected <owner> <domain>")
	}
	site, err := sites.Create(app.DBManager.GetConnection(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Created site %s for %s (id %s)\n", site.Domain, site.OwnerID, site.PublicID)
	return nil
}

// ListSitesCommand prints every registered site.
type ListSitesCommand struct{}

func (c *ListSitesCommand) Name() string        { return "list-sites" }
func (c *ListSitesCommand) Description() string { return "List all registered sites" }

func (c *ListSitesCommand) Execute(_ context.Context, app *internal.Application, _ []string) error {
	var all []sites.Site
	if err := app.DBManager.GetConnection().Order("created_at ASC").Find(&all).Error; err != nil {
		return err
	}
	for _, site := range all {
		fmt.Printf("%s  %-30s owner=%s\n", site.PublicID, site.Domain, site.OwnerID)
	}
	fmt.Printf("%d site(s)\n", len(all))
	return nil
}

// TokenCommand mints an API bearer token for a user.
type TokenCommand struct{}

func (c *TokenCommand) Name() string        { return "token" }
func (c *TokenCommand) Description() string { return "Mint an API token: token <user> [ttl-hours]" }

func (c *TokenCommand) Execute(_ context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("expected <user>")
	}
	ttl := 24 * time.Hour
	if len(args) > 1 {
		hours, err := time.ParseDuration(args[1] + "h")
		if err != nil {
			return fmt.Errorf("invalid ttl-hours: %w", err)
		}
		ttl = hours
	}

	claims := jwt.RegisteredClaims{
		Subject:   args[0],
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(app.Config.PrivateKey))
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Println(signed)
	return nil
}

// StatsCommand answers a range query from the terminal.
type StatsCommand struct{}

func (c *StatsCommand) Name() string        { return "stats" }
func (c *StatsCommand) Description() string { return "Query a site: stats <site-id> [period] [breakdown]" }

func (c *StatsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("expected <site-id>")
	}
	token := query.Period30d
	if len(args) > 1 {
		token = args[1]
	}
	period, err := query.ParsePeriod(token, "", "", time.Now())
	if err != nil {
		return err
	}

	params := query.Params{SiteID: args[0], Period: period}
	if len(args) > 2 {
		params.Breakdown = args[2]
	}
	result, err := app.Engine.Query(ctx, params)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

// HelpCommand prints usage.
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Show this help" }

func (c *HelpCommand) Execute(_ context.Context, _ *internal.Application, _ []string) error {
	printUsage()
	return nil
}
