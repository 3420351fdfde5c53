package neo4j_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	driver "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/neo4j"
	"github.com/aretw0/arbor/pkg/adapters/storetest"
	"github.com/aretw0/arbor/pkg/core"
)

var testDriver driver.DriverWithContext

// TestMain starts a throwaway Neo4j container. Without docker (or with -short)
// the tests in this package are skipped.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		fmt.Printf("docker unavailable, skipping neo4j tests: %s\n", err)
		os.Exit(m.Run())
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "neo4j",
		Tag:        "4.4",
		Env: []string{
			"NEO4J_AUTH=neo4j/password",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		fmt.Printf("Could not start resource: %s\n", err)
		os.Exit(1)
	}

	pool.MaxWait = 120 * time.Second

	if err := pool.Retry(func() error {
		var err error
		testDriver, err = driver.NewDriverWithContext(
			"bolt://localhost:"+resource.GetPort("7687/tcp"),
			driver.BasicAuth("neo4j", "password", ""),
		)
		if err != nil {
			return err
		}
		return testDriver.VerifyConnectivity(context.Background())
	}); err != nil {
		fmt.Printf("Could not connect to neo4j: %s\n", err)
		_ = pool.Purge(resource)
		os.Exit(1)
	}

	code := m.Run()

	_ = testDriver.Close(context.Background())
	if err := pool.Purge(resource); err != nil {
		fmt.Printf("Could not purge resource: %s\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func fresh(t *testing.T) *neo4j.Repository {
	t.Helper()
	if testDriver == nil {
		t.Skip("neo4j not available")
	}
	ctx := context.Background()
	repo := neo4j.New(testDriver, neo4j.Config{})
	require.NoError(t, repo.Initialize(ctx))
	require.NoError(t, repo.Purge(ctx))
	return repo
}

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Repository { return fresh(t) })
}

func TestRepository_DuplicateID(t *testing.T) {
	repo := fresh(t)
	n := core.NewFolder("alice", "f", nil)
	n.ID = "dup"
	_, err := repo.Insert(context.Background(), n)
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), n)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestRepository_ClearsOptionalFields(t *testing.T) {
	repo := fresh(t)
	ctx := context.Background()
	now := time.Now()

	n := core.NewLeaf("alice", "n", core.Ref("p"), "")
	n.DeletedAt = &now
	n, err := repo.Insert(ctx, n)
	require.NoError(t, err)

	n.ParentID = nil
	n.DeletedAt = nil
	require.NoError(t, repo.Update(ctx, n))

	got, err := repo.Get(ctx, "alice", n.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
	assert.Nil(t, got.DeletedAt)
}

func TestOpen_RequiresURI(t *testing.T) {
	_, err := neo4j.Open(context.Background(), neo4j.Config{})
	assert.Error(t, err)
}
