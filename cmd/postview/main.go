// Command postview serves the paginated post viewer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/Sternrassler/postview/internal/config"
	"github.com/Sternrassler/postview/internal/web"
	"github.com/Sternrassler/postview/pkg/client"
	"github.com/Sternrassler/postview/pkg/logging"
	"github.com/Sternrassler/postview/pkg/render"
	"github.com/Sternrassler/postview/pkg/telemetry"
	"github.com/Sternrassler/postview/pkg/viewer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal().Err(err).Msg("postview failed")
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("postview", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "config file (yaml, json or toml)")
	once := flags.Bool("once", false, "print the first page as text and exit")
	flags.String("listen", "", "listen address (overrides listen_addr)")
	flags.String("endpoint", "", "posts endpoint (overrides endpoint)")
	flags.String("log-level", "", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return err
	}

	v := config.NewViper()
	for key, flag := range map[string]string{
		"listen_addr": "listen",
		"endpoint":    "endpoint",
		"log_level":   "log-level",
	} {
		// Only explicitly set flags override file and environment
		if f := flags.Lookup(flag); f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := config.Load(v, *configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Logging())

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{Stdout: cfg.TraceStdout})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}()

	rdb, err := cfg.Redis()
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		if err := pingRedis(ctx, rdb); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("redis", rdb.Options().Addr).Msg("Connected to Redis")
	}

	c, err := client.New(cfg.Client(rdb))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer c.Close()

	logger.Info().
		Str("endpoint", cfg.Endpoint).
		Str("user_agent", cfg.UserAgent).
		Int("page_size", cfg.PageSize).
		Msg("Client ready")

	if *once {
		return printFirstPage(ctx, c, cfg.Viewer(), stdout)
	}

	webCfg := web.DefaultConfig()
	webCfg.ListenAddr = cfg.ListenAddr
	srv := web.NewServer(webCfg, c, cfg.Viewer(), rdb, logging.NewLogger("web"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func pingRedis(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}

// printFirstPage runs a headless viewer until the first fetch settles and
// writes the visible regions as text.
func printFirstPage(ctx context.Context, fetcher client.Fetcher, cfg viewer.Config, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	settled := make(chan viewer.Frame, 1)
	surface := viewer.SurfaceFunc(func(f viewer.Frame) {
		if f.View == render.Loading {
			return
		}
		select {
		case settled <- f:
		default:
		}
	})

	cfg.SkeletonDelay = 0
	ctrl, err := viewer.New(fetcher, surface, cfg, logging.NewLogger("viewer"))
	if err != nil {
		return err
	}
	go ctrl.Run(ctx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case f := <-settled:
		cancel()
		<-ctrl.Done()

		if f.View == render.Failed {
			fmt.Fprintln(out, f.Regions.Error.PlainText())
			return errors.New("fetch failed")
		}
		for _, card := range f.Regions.List.FindAll(isCard) {
			fmt.Fprintln(out, cardLine(card))
		}
		fmt.Fprintf(out, "page %d of %d\n", f.Page.Current, f.Page.Total)
		return nil
	}
}

func isCard(n *render.Node) bool {
	_, ok := n.Attr("data-record")
	return ok
}

func cardLine(card *render.Node) string {
	title := card.Find(func(n *render.Node) bool { return n.Tag == "h2" })
	id, _ := card.Attr("data-record")
	return fmt.Sprintf("#%s %s", id, title.PlainText())
}
