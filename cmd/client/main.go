package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/urfave/cli.v1"

	"github.com/rpsarena/client/internal/analytics"
	"github.com/rpsarena/client/internal/challenge"
	"github.com/rpsarena/client/internal/config"
	"github.com/rpsarena/client/internal/coordinator"
	"github.com/rpsarena/client/internal/database"
	"github.com/rpsarena/client/internal/feed"
	"github.com/rpsarena/client/internal/logger"
	"github.com/rpsarena/client/internal/loop"
	"github.com/rpsarena/client/internal/records"
	"github.com/rpsarena/client/internal/render"
	"github.com/rpsarena/client/internal/shell"
	"github.com/rpsarena/client/internal/transport"
	"github.com/rpsarena/client/internal/utils"
	"github.com/rpsarena/client/internal/viewserver"
)

func main() {
	app := cli.NewApp()
	app.Name = "rps"
	app.Usage = "hidden-choice Rock Paper Scissors client"
	app.Version = "1.0.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "env-file",
			Value: ".env.local",
			Usage: "dotenv file loaded before reading the environment",
		},
		cli.StringFlag{
			Name:  "server",
			Usage: "rules server base URL, overrides RPS_SERVER_URL",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "log DEBUG entries",
		},
	}

	app.Before = func(c *cli.Context) error {
		if err := godotenv.Load(c.GlobalString("env-file")); err != nil {
			logger.Debug("env file not loaded, using system environment", logger.Fields{"file": c.GlobalString("env-file")})
		}
		if s := c.GlobalString("server"); s != "" {
			os.Setenv("RPS_SERVER_URL", s)
		}
		if c.GlobalBool("debug") {
			logger.Default().SetDebug(true)
		}
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:   "play",
			Usage:  "play a match in this terminal",
			Action: play,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "viewer",
					Value: -1,
					Usage: "whose hidden choice this terminal may show (0 shared, 1 or 2), overrides RPS_VIEWER",
				},
			},
		},
		{
			Name:   "records",
			Usage:  "print the server's match records",
			Action: showRecords,
		},
		{
			Name:   "history",
			Usage:  "list recent matches from the analytics database",
			Action: history,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "limit", Value: 10, Usage: "number of matches"},
			},
		},
		{
			Name:   "analytics",
			Usage:  "consume client events from Kafka into Postgres",
			Action: runAnalytics,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("command failed", logger.Fields{"error": err.Error()})
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, cli.NewExitError(err.Error(), 2)
	}
	return cfg, nil
}

func play(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if v := c.Int("viewer"); v >= 0 {
		if v > 2 {
			return cli.NewExitError("viewer must be 0, 1 or 2", 2)
		}
		cfg.Client.Viewer = v
	}

	rm := utils.NewResourceManager()
	defer rm.Cleanup()
	ctx, stop := rm.HandleGracefulShutdown(context.Background())
	defer stop()

	l := loop.New(0)
	go l.Run(ctx)
	rm.AddCleanupFunc("event loop", func() error {
		l.Stop()
		return nil
	})

	client := transport.NewClient(cfg.Server.BaseURL, cfg.Server.Timeout)
	logger.Info("client starting", logger.Fields{"server": cfg.Server.BaseURL, "session": client.Session()})

	renderers := render.Fanout{render.NewConsole(os.Stdout, cfg.Client.Viewer)}
	if cfg.View.Addr != "" {
		vs := viewserver.New(viewserver.Config{
			Addr:           cfg.View.Addr,
			AllowedOrigins: cfg.View.AllowedOrigins,
			RateLimit:      cfg.View.RateLimit,
			RateBurst:      cfg.View.RateBurst,
		})
		vs.Start()
		rm.AddCleanupFunc("view server", func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return vs.Shutdown(sctx)
		})
		renderers = append(renderers, vs)
	}

	opts := coordinator.Options{
		Server:       client,
		Renderer:     renderers,
		Loop:         l,
		PollInterval: cfg.Client.PollInterval,
		CPUDelay:     cfg.Client.CPUDelay,
	}
	if cfg.KafkaEnabled() {
		producer, err := analytics.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, client.Session())
		if err != nil {
			logger.Warn("kafka producer init failed, events disabled", logger.Fields{"error": err.Error()})
		} else {
			opts.Tracker = producer
			rm.AddCleanupFunc("kafka producer", producer.Close)
		}
	}

	coord := coordinator.New(opts)
	flow := challenge.New(client, renderers, l, coord)
	coord.SetChallengeHandler(flow)

	if cfg.Feed.URL != "" {
		f := feed.New(cfg.Feed.URL, client.Session(), coord)
		go f.Run(ctx)
	}

	book := records.NewBook(client, cfg.Records.CacheTTL)
	rm.AddCleanupFunc("records cache", book.Close)

	err = shell.New(coord, flow, book, os.Stdout).Run(ctx, os.Stdin)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func showRecords(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := transport.NewClient(cfg.Server.BaseURL, cfg.Server.Timeout)
	recs, err := client.Records(context.Background())
	if err != nil {
		return err
	}
	fmt.Print(records.Format(recs))
	return nil
}

func openDB(cfg *config.Config) (*database.DB, error) {
	return database.NewDB(database.Config{
		URL:      cfg.Database.URL,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
	})
}

func history(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	matches, err := db.RecentMatches(context.Background(), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No matches recorded yet.")
		return nil
	}
	for _, m := range matches {
		winner := m.Winner
		if m.IsDraw {
			winner = "tie"
		}
		fmt.Printf("%s  %d - %d  %-12s %5.0fs  %s\n",
			m.EndedAt.Format("2006-01-02 15:04"), m.Score1, m.Score2, winner, m.Duration, m.MatchID)
	}
	return nil
}

func runAnalytics(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.KafkaEnabled() {
		return cli.NewExitError("KAFKA_BROKERS is not set", 2)
	}

	rm := utils.NewResourceManager()
	defer rm.Cleanup()
	ctx, stop := rm.HandleGracefulShutdown(context.Background())
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	rm.AddCleanupFunc("database", db.Close)
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	consumer, err := analytics.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, db)
	if err != nil {
		return err
	}
	rm.AddCleanupFunc("kafka consumer", consumer.Close)

	logger.Info("analytics consumer started", logger.Fields{"topic": cfg.Kafka.Topic, "group": cfg.Kafka.GroupID})
	err = consumer.Start(ctx, []string{cfg.Kafka.Topic})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
