package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/extract"
)

func TestPostgres_SinkAndResumeQueries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "docextract",
				"POSTGRES_PASSWORD": "docextract",
				"POSTGRES_DB":       "docextract",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	endpoint, err := ctr.PortEndpoint(ctx, "5432/tcp", "")
	require.NoError(t, err)

	db, err := Open(ctx, Config{
		Driver:      "postgres",
		DSN:         "postgres://docextract:docextract@" + endpoint + "/docextract?sslmode=disable",
		MaxConns:    4,
		DialTimeout: 10 * time.Second,
	}, nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.HealthCheck(ctx, 5*time.Second))
	require.NoError(t, db.Migrate(ctx))

	files := NewFileRepository(db, nil)
	sink := NewSink(db, nil, nil)

	f, err := files.Create(ctx, NewFile{Filename: "two.pdf", MIMEType: constants.MIMEPDF})
	require.NoError(t, err)
	require.NoError(t, sink.Save(ctx, extract.Result{FileID: f.ID, Text: "one", Location: extract.Location{Page: 1}}))
	require.NoError(t, sink.Save(ctx, extract.Result{FileID: f.ID, Text: "dup", Location: extract.Location{Page: 1}}))

	unfinished, err := files.FindUnfinished(ctx, constants.HandledMIMETypes)
	require.NoError(t, err)
	require.Len(t, unfinished, 1)
	assert.Equal(t, []extract.Location{{Page: 1}}, unfinished[0].FinishedLocations)

	require.NoError(t, sink.Save(ctx, extract.Result{FileID: f.ID, Text: "two", Location: extract.Location{Page: 2}, IsFinished: true}))
	got, err := files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.TextExtracted)
	assert.Equal(t, constants.FileStatusComplete, got.Status)
}
