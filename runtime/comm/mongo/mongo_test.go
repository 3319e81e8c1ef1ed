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

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/comm"
	commmongo "goa.design/conductor/runtime/comm/mongo"
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
		t.Logf("docker not available, skipping mongo comm tests: %v", containerErr)
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

func getStore(t *testing.T, deps map[agentset.Ident][]agentset.Ident) *commmongo.Store {
	t.Helper()
	if testClient == nil && !skipMongoTests {
		setupMongoDB(t)
	}
	if skipMongoTests {
		t.Skip("docker not available, skipping mongo comm test")
	}
	store, err := commmongo.New(commmongo.Options{
		Client: testClient, Database: "conductor_test", Collection: t.Name(),
		Timeout: 5 * time.Second, Dependencies: deps,
	})
	require.NoError(t, err)
	return store
}

func TestMongoStoreContextAndDependencyOutputsRoundTrip(t *testing.T) {
	writer := agentset.Ident("writer")
	testGen := agentset.Ident("test_gen")
	store := getStore(t, map[agentset.Ident][]agentset.Ident{testGen: {writer}})
	ctx := context.Background()

	store.UpdateAgentContext(ctx, writer, "write fibonacci", comm.StateCompleted, "", nil, map[string]any{"file": "fib.py"})

	outputs := store.GetDependencyOutputs(testGen)
	require.Equal(t, map[string]any{"file": "fib.py"}, outputs[writer])

	recorded, ok := store.Context(writer)
	require.True(t, ok)
	require.Equal(t, comm.StateCompleted, recorded.ExecutionState)
}

func TestMongoStoreSuggestNextActionsSurfacesUnreadError(t *testing.T) {
	writer := agentset.Ident("writer-2")
	testGen := agentset.Ident("test_gen-2")
	store := getStore(t, map[agentset.Ident][]agentset.Ident{testGen: {writer}})
	ctx := context.Background()

	store.UpdateAgentContext(ctx, writer, "write fibonacci", comm.StateCompleted, "", nil, nil)
	store.SendMessage(ctx, writer, testGen, comm.MessageError, "syntax error on line 3", nil)

	suggestions := store.SuggestNextActions(testGen)
	require.NotEmpty(t, suggestions)
	require.Contains(t, suggestions[0], "syntax error on line 3")

	again := store.SuggestNextActions(testGen)
	for _, s := range again {
		require.NotContains(t, s, "syntax error on line 3")
	}
}
