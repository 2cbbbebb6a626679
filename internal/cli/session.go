package cli

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/roach88/graphgate/internal/config"
	"github.com/roach88/graphgate/internal/cypher"
	"github.com/roach88/graphgate/internal/entity"
	"github.com/roach88/graphgate/internal/index"
	"github.com/roach88/graphgate/internal/transport"
)

// tracerName names the tracer used for every CLI transaction.
const tracerName = "github.com/roach88/graphgate/cli"

// Connector opens the database described by cfg. The returned function
// releases it.
type Connector func(ctx context.Context, cfg config.Config) (transport.Opener, func(context.Context) error, error)

// connectNeo4j is the Connector used outside tests.
func connectNeo4j(ctx context.Context, cfg config.Config) (transport.Opener, func(context.Context) error, error) {
	client := transport.NewNeo4jClient(cfg.Neo4j())
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// session bundles everything a database command needs.
type session struct {
	cfg           config.Config
	graph         *entity.Graph
	opener        transport.Opener
	nodes         *index.NodeIndex
	relationships *index.RelationshipIndex
	close         func(context.Context) error
}

// openSession loads configuration and connects.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	g, err := entity.NewGraph(cfg.Graph())
	if err != nil {
		return nil, err
	}

	connect := opts.Connect
	if connect == nil {
		connect = connectNeo4j
	}
	slog.Debug("connecting", "uri", cfg.URI, "database", cfg.Database)
	opener, closeFn, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeFn == nil {
		closeFn = func(context.Context) error { return nil }
	}

	compiler := cypher.NewCompiler(cfg.Compiler())
	return &session{
		cfg:           cfg,
		graph:         g,
		opener:        transport.NewTracedOpener(opener, otel.Tracer(tracerName)),
		nodes:         index.NewNodeIndex(compiler, cfg.Index()),
		relationships: index.NewRelationshipIndex(compiler, cfg.Index()),
		close:         closeFn,
	}, nil
}

// Close releases the connection, logging failures.
func (s *session) Close(ctx context.Context) {
	if err := s.close(ctx); err != nil {
		slog.Warn("closing connection", "error", err)
	}
}
