// Command admin performs out-of-band operator tasks against the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/PaulinaPacula189/course-reservation/internal/app"
	"github.com/PaulinaPacula189/course-reservation/internal/config"
	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/core/service"
	"github.com/PaulinaPacula189/course-reservation/internal/logging"
)

const usage = `usage: admin [-config path] <command> [flags]

commands:
  grant  -email addr        give a user the admin role
  revoke -email addr        take the admin role away
  seed   -title t [...]     create a course
`

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Init(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, rdb, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer func() {
		store.Close()
		if rdb != nil {
			rdb.Close()
		}
	}()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "grant", "revoke":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		email := fs.String("email", "", "user email")
		fs.Parse(args)

		addr, err := domain.NormalizeEmail(*email)
		if err != nil {
			log.Fatalf("%s: %v", cmd, err)
		}
		if err := store.SetAdmin(ctx, addr, cmd == "grant"); err != nil {
			log.Fatalf("%s %s: %v", cmd, addr, err)
		}
		fmt.Printf("%s: admin=%t\n", addr, cmd == "grant")

	case "seed":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		var draft service.CourseDraft
		fs.StringVar(&draft.Title, "title", "", "course title")
		fs.StringVar(&draft.Description, "description", "", "course description")
		fs.StringVar(&draft.Price, "price", "0", "price")
		fs.StringVar(&draft.Seats, "seats", "0", "seat count")
		fs.StringVar(&draft.StartDate, "start", "", "start date as shown to visitors")
		fs.StringVar(&draft.Category, "category", string(domain.CategoryWebDevelopment), "category")
		fs.Parse(args)

		course, err := service.NewCatalogService(store, store).AddCourse(ctx, draft)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		fmt.Printf("created course %s (%q, %d seats)\n", course.ID, course.Title, course.Seats)

	default:
		flag.Usage()
		os.Exit(2)
	}
}
