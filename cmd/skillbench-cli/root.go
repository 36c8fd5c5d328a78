package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bcrosbie/skillbench/internal/auth"
	"github.com/bcrosbie/skillbench/internal/config"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

type globalOptions struct {
	addr    string
	token   string
	timeout time.Duration
	asJSON  bool
}

var opts globalOptions

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "skillbench-cli",
		Short:         "Query recommendations and manage the SkillBench catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", envOr("SKILLBENCH_GRPC_ADDR", "127.0.0.1:50051"), "gRPC address of skillbench-server")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("SKILLBENCH_EXECUTION_TOKEN"), "execution token for trial commands")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "RPC timeout")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON instead of tables")

	root.AddCommand(newHealthCmd())
	root.AddCommand(newRecommendCmd())
	root.AddCommand(newSkillsCmd())
	root.AddCommand(newTrialCmd())
	root.AddCommand(newCatalogCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// dial opens a client connection; the returned context carries the timeout
// and, when set, the execution token.
func dial(parent context.Context, timeout time.Duration) (context.Context, *grpc.ClientConn, func(), error) {
	conn, err := grpc.NewClient(opts.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial %s: %w", opts.addr, err)
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	if opts.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, auth.HeaderToken, opts.token)
	}
	return ctx, conn, func() {
		cancel()
		conn.Close()
	}, nil
}

func callStruct(ctx context.Context, conn grpc.ClientConnInterface, method string, request any) (map[string]any, error) {
	response := &structpb.Struct{}
	if err := conn.Invoke(ctx, method, request, response); err != nil {
		return nil, fmt.Errorf("rpc %s: %w", method, err)
	}
	return response.AsMap(), nil
}

func callList(ctx context.Context, conn grpc.ClientConnInterface, method string, request any) ([]any, error) {
	response := &structpb.ListValue{}
	if err := conn.Invoke(ctx, method, request, response); err != nil {
		return nil, fmt.Errorf("rpc %s: %w", method, err)
	}
	return response.AsSlice(), nil
}

func printJSON(value any) error {
	serialized, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(serialized))
	return nil
}

// openStore connects straight to the configured database for the commands
// that provision or inspect it out of band.
func openStore(ctx context.Context) (*store.SQLStore, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	if cfg.StoreDriver == config.StoreDriverPostgres {
		// Postgres may not carry the schema yet; migrate and import must not
		// wait for it.
		return store.NewPostgresStore(cfg.DatabaseURL)
	}
	return store.Open(ctx, store.OpenConfig{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Attempts:    cfg.StoreConnectAttempts,
	})
}
