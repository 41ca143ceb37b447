//go:build integration

package services_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"aiclone/services"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	postgresURI    string
	dynamoEndpoint string
	tableSeq       atomic.Int64
)

// TestMain starts Postgres and DynamoDB Local containers shared by all store tests.
func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "aiclone",
				"POSTGRES_PASSWORD": "aiclone",
				"POSTGRES_DB":       "aiclone",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start postgres container: %v", err)
	}

	ddb, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "amazon/dynamodb-local:latest",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory", "-sharedDb"},
			WaitingFor:   wait.ForListeningPort("8000/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start dynamodb-local container: %v", err)
	}

	postgresURI = fmt.Sprintf("postgres://aiclone:aiclone@%s/aiclone", containerAddr(ctx, pg, "5432"))
	dynamoEndpoint = "http://" + containerAddr(ctx, ddb, "8000")

	code := m.Run()

	_ = pg.Terminate(ctx)
	_ = ddb.Terminate(ctx)
	os.Exit(code)
}

func containerAddr(ctx context.Context, c testcontainers.Container, port string) string {
	host, err := c.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// testcontainers may report "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// uniquePrefix keeps every test on its own tables.
func uniquePrefix() string {
	return fmt.Sprintf("test%d", tableSeq.Add(1))
}

func TestPostgresStore(t *testing.T) {
	runRecordStoreContract(t, func(t *testing.T) services.RecordStore {
		ctx := context.Background()
		store, err := services.NewPostgresStore(ctx, postgresURI, uniquePrefix(), testLogger())
		require.NoError(t, err)
		require.NoError(t, store.EnsureSchema(ctx))
		t.Cleanup(func() { _ = store.Close(ctx) })
		return store
	})
}

func TestPostgresStoreEnsureSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := services.NewPostgresStore(ctx, postgresURI, uniquePrefix(), testLogger())
	require.NoError(t, err)
	defer store.Close(ctx)

	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))
}

func newDynamoClient(t *testing.T) *dynamodb.Client {
	client, err := services.NewDynamoDBClient(context.Background(), services.DynamoDBConfig{
		Endpoint: dynamoEndpoint,
		Region:   "us-east-1",
	})
	require.NoError(t, err)
	return client
}

func TestDynamoDBStore(t *testing.T) {
	runRecordStoreContract(t, func(t *testing.T) services.RecordStore {
		store := services.NewDynamoDBStore(newDynamoClient(t), uniquePrefix(), testLogger())
		require.NoError(t, store.EnsureTables(context.Background()))
		return store
	})
}

func TestDynamoDBStoreEnsureTablesIsIdempotent(t *testing.T) {
	store := services.NewDynamoDBStore(newDynamoClient(t), uniquePrefix(), testLogger())
	require.NoError(t, store.EnsureTables(context.Background()))
	require.NoError(t, store.EnsureTables(context.Background()))
}

func TestDynamoDBStoreRejectsDuplicateConversation(t *testing.T) {
	ctx := context.Background()
	store := services.NewDynamoDBStore(newDynamoClient(t), uniquePrefix(), testLogger())
	require.NoError(t, store.EnsureTables(ctx))

	c := testConversation("c1", "u1", "u2", "2025-01-01T00:00:00Z")
	require.NoError(t, store.CreateConversation(ctx, c))
	require.ErrorIs(t, store.CreateConversation(ctx, c), services.ErrStore)
}
