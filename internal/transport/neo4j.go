package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/roach88/graphgate/internal/graph"
)

// Neo4jConfig holds connection settings for a Neo4j server.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string

	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
	// ConnectAttempts bounds the exponential backoff in Connect.
	ConnectAttempts int
}

// Neo4jClient opens transaction-bound transports against a Neo4j server.
// It must be connected via Connect before use.
type Neo4jClient struct {
	cfg    Neo4jConfig
	driver neo4j.DriverWithContext
}

// NewNeo4jClient returns an unconnected client.
func NewNeo4jClient(cfg Neo4jConfig) *Neo4jClient {
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 5
	}
	return &Neo4jClient{cfg: cfg}
}

// Connect creates the driver and verifies connectivity, backing off
// exponentially between attempts.
func (c *Neo4jClient) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(c.cfg.Username, c.cfg.Password, "")
	configure := func(config *neo4j.Config) {
		if c.cfg.MaxConnectionPoolSize > 0 {
			config.MaxConnectionPoolSize = c.cfg.MaxConnectionPoolSize
		}
		config.ConnectionAcquisitionTimeout = c.cfg.ConnectionTimeout
	}

	var lastErr error
	delay := 100 * time.Millisecond
	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		driver, err := neo4j.NewDriverWithContext(c.cfg.URI, auth, configure)
		if err == nil {
			if err = driver.VerifyConnectivity(ctx); err == nil {
				c.driver = driver
				slog.Info("connected to graph database", "uri", c.cfg.URI, "database", c.cfg.Database)
				return nil
			}
			_ = driver.Close(ctx)
		}
		lastErr = err

		slog.Warn("graph database connection failed",
			"uri", c.cfg.URI,
			"attempt", attempt,
			"error", err)
		if attempt == c.cfg.ConnectAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return graph.WrapError(graph.ErrCodeTransportFailed, "connection attempt cancelled", ctx.Err())
		}
		delay = min(delay*2, c.cfg.ConnectionTimeout)
	}

	return graph.WrapError(graph.ErrCodeTransportFailed,
		fmt.Sprintf("failed to connect after %d attempts", c.cfg.ConnectAttempts), lastErr)
}

// Close releases the driver.
func (c *Neo4jClient) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	if err != nil {
		return graph.WrapError(graph.ErrCodeTransportFailed, "failed to close driver", err)
	}
	return nil
}

// Begin opens a session and an explicit write transaction on it.
func (c *Neo4jClient) Begin(ctx context.Context) (Transport, error) {
	if c.driver == nil {
		return nil, graph.NewError(graph.ErrCodeTransportFailed, "driver not connected")
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.cfg.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return nil, driverError("begin transaction", err)
	}
	return &Neo4jTx{session: session, tx: tx}, nil
}

// Neo4jTx is a Transport bound to one explicit Neo4j transaction.
type Neo4jTx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
}

// FetchNodes implements Transport.
func (t *Neo4jTx) FetchNodes(ctx context.Context, statement string, params map[string]any) (Cursor[RawNode], error) {
	res, err := t.tx.Run(ctx, statement, params)
	if err != nil {
		return nil, driverError("run node statement", err)
	}
	return &resultCursor[RawNode]{res: res, convert: nodeFromRecord}, nil
}

// FetchRelationships implements Transport.
func (t *Neo4jTx) FetchRelationships(ctx context.Context, statement string, params map[string]any) (Cursor[RawRelationship], error) {
	res, err := t.tx.Run(ctx, statement, params)
	if err != nil {
		return nil, driverError("run relationship statement", err)
	}
	return &resultCursor[RawRelationship]{res: res, convert: relationshipFromRecord}, nil
}

// FetchScalar implements Transport.
func (t *Neo4jTx) FetchScalar(ctx context.Context, statement string, params map[string]any) (Cursor[RawRow], error) {
	res, err := t.tx.Run(ctx, statement, params)
	if err != nil {
		return nil, driverError("run statement", err)
	}
	return &resultCursor[RawRow]{res: res, convert: rowFromRecord}, nil
}

// Exec implements Transport.
func (t *Neo4jTx) Exec(ctx context.Context, statement string, params map[string]any) (Summary, error) {
	res, err := t.tx.Run(ctx, statement, params)
	if err != nil {
		return Summary{}, driverError("run write statement", err)
	}
	sum, err := res.Consume(ctx)
	if err != nil {
		return Summary{}, driverError("consume write statement", err)
	}

	c := sum.Counters()
	return Summary{
		NodesCreated:         c.NodesCreated(),
		NodesDeleted:         c.NodesDeleted(),
		RelationshipsCreated: c.RelationshipsCreated(),
		RelationshipsDeleted: c.RelationshipsDeleted(),
		PropertiesSet:        c.PropertiesSet(),
	}, nil
}

// Commit commits the transaction and closes the session.
func (t *Neo4jTx) Commit(ctx context.Context) error {
	defer t.session.Close(ctx)
	if err := t.tx.Commit(ctx); err != nil {
		return driverError("commit", err)
	}
	return nil
}

// Rollback rolls the transaction back and closes the session.
func (t *Neo4jTx) Rollback(ctx context.Context) error {
	defer t.session.Close(ctx)
	if err := t.tx.Rollback(ctx); err != nil {
		return driverError("rollback", err)
	}
	return nil
}

type resultCursor[T any] struct {
	res     neo4j.ResultWithContext
	convert func(*neo4j.Record) (T, error)
	cur     T
	err     error
}

func (c *resultCursor[T]) Next(ctx context.Context) bool {
	if c.err != nil || !c.res.Next(ctx) {
		return false
	}
	v, err := c.convert(c.res.Record())
	if err != nil {
		c.err = err
		return false
	}
	c.cur = v
	return true
}

func (c *resultCursor[T]) Record() T { return c.cur }

func (c *resultCursor[T]) Err() error {
	if c.err != nil {
		return c.err
	}
	if err := c.res.Err(); err != nil {
		return driverError("read result", err)
	}
	return nil
}

// Close discards any unread rows.
func (c *resultCursor[T]) Close(ctx context.Context) error {
	if _, err := c.res.Consume(ctx); err != nil {
		return driverError("consume result", err)
	}
	return nil
}

func nodeFromRecord(rec *neo4j.Record) (RawNode, error) {
	if len(rec.Values) == 0 {
		return RawNode{}, graph.NewError(graph.ErrCodeTransportFailed, "empty record where a node was expected")
	}
	n, ok := rec.Values[0].(dbtype.Node)
	if !ok {
		return RawNode{}, graph.NewError(graph.ErrCodeTransportFailed,
			fmt.Sprintf("expected node, got %T", rec.Values[0]))
	}
	return RawNode{ID: n.Id, Labels: n.Labels, Properties: n.Props}, nil
}

func relationshipFromRecord(rec *neo4j.Record) (RawRelationship, error) {
	if len(rec.Values) == 0 {
		return RawRelationship{}, graph.NewError(graph.ErrCodeTransportFailed, "empty record where a relationship was expected")
	}
	r, ok := rec.Values[0].(dbtype.Relationship)
	if !ok {
		return RawRelationship{}, graph.NewError(graph.ErrCodeTransportFailed,
			fmt.Sprintf("expected relationship, got %T", rec.Values[0]))
	}
	return RawRelationship{
		ID:         r.Id,
		StartID:    r.StartId,
		EndID:      r.EndId,
		Type:       r.Type,
		Properties: r.Props,
	}, nil
}

func rowFromRecord(rec *neo4j.Record) (RawRow, error) {
	row := make(RawRow, len(rec.Keys))
	for i, k := range rec.Keys {
		row[k] = rec.Values[i]
	}
	return row, nil
}

// driverError wraps a driver error, carrying the driver's retry verdict.
func driverError(op string, err error) *graph.Error {
	return &graph.Error{
		Code:      graph.ErrCodeTransportFailed,
		Message:   op,
		Retryable: neo4j.IsRetryable(err),
		Cause:     err,
	}
}
