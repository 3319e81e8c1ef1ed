package mongo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/conductor/runtime/execlog"
	execmongo "goa.design/conductor/runtime/execlog/mongo"
)

var (
	testClient     *mongodriver.Client
	testContainer  testcontainers.Container
	skipMongoTests bool
)

func setupMongoDB(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		t.Logf("docker not available, skipping mongo execlog tests: %v", containerErr)
		skipMongoTests = true
		return
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		skipMongoTests = true
		return
	}
	port, err := testContainer.MappedPort(ctx, "27017")
	if err != nil {
		skipMongoTests = true
		return
	}
	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testClient, err = mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		skipMongoTests = true
		return
	}
	if err := testClient.Ping(ctx, nil); err != nil {
		skipMongoTests = true
	}
}

func getStore(t *testing.T) *execmongo.Store {
	t.Helper()
	if testClient == nil && !skipMongoTests {
		setupMongoDB(t)
	}
	if skipMongoTests {
		t.Skip("docker not available, skipping mongo execlog test")
	}
	store, err := execmongo.New(execmongo.Options{
		Client:     testClient,
		Database:   "conductor_test",
		Collection: t.Name(),
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	return store
}

func TestMongoStoreRecordAndQueryRoundTrip(t *testing.T) {
	store := getStore(t)
	ctx := context.Background()

	store.RecordExecution(ctx, execlog.Entry{
		RunID: "run-1", Agent: "writer", Task: "implement fibonacci",
		Content: "implemented fibonacci with memoization", Success: true,
		Timestamp: time.Now(),
	})

	// $text indexes are eventually built; allow the write to settle.
	time.Sleep(100 * time.Millisecond)

	results := store.GetSimilarExecutions(ctx, "fibonacci", execlog.Query{TopK: 5})
	require.NotEmpty(t, results)
	require.Equal(t, "implement fibonacci", results[0].Task)
}
