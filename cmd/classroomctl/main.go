// Command classroomctl runs operator tasks against the classroom database:
// creating professor accounts, seeding course content and re-queueing
// feedback the LLM failed to produce.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/database"
	"github.com/stemsi/exstem-classroom/internal/logger"
	"github.com/stemsi/exstem-classroom/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "classroomctl",
		Short:        "Operator tools for ExStem Classroom",
		SilenceUsage: true,
	}
	root.AddCommand(createProfessorCmd(), seedCourseCmd(), regenerateFeedbackCmd())
	return root
}

// viperForCmd binds a command's flags and CLASSROOM_* environment variables
// to a fresh viper instance. An optional classroomctl.{yaml,json,toml} in the
// working directory or $HOME/.config/classroom fills the rest.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CLASSROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("classroomctl")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/classroom")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "warning: reading config file: %v\n", err)
		}
	}
	return v
}

// env is the shared runtime every subcommand connects through. Server
// settings (DATABASE_URL, REDIS_URL, LLM_*) come from the same environment
// the server reads.
type env struct {
	cfg  *config.Config
	log  zerolog.Logger
	pool *pgxpool.Pool
	rdb  *redis.Client
	docs *repository.DocumentStore
}

func connect(ctx context.Context, withRedis bool) (*env, error) {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	e := &env{cfg: cfg, log: log, pool: pool, docs: repository.NewDocumentStore(pool)}

	if withRedis {
		e.rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
	e.pool.Close()
}
