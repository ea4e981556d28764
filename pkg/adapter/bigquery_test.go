package adapter_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/gt"
)

type auditRow struct {
	ConversationID string    `bigquery:"conversation_id"`
	Query          string    `bigquery:"query"`
	Success        bool      `bigquery:"success"`
	CreatedAt      time.Time `bigquery:"created_at"`
}

func TestBigQueryInsert(t *testing.T) {
	projectID := os.Getenv("TEST_BIGQUERY_PROJECT")
	if projectID == "" {
		t.Skip("TEST_BIGQUERY_PROJECT is not set")
	}

	datasetID := os.Getenv("TEST_BIGQUERY_DATASET")
	if datasetID == "" {
		t.Skip("TEST_BIGQUERY_DATASET is not set")
	}

	table := os.Getenv("TEST_BIGQUERY_TABLE")
	if table == "" {
		t.Skip("TEST_BIGQUERY_TABLE is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewBigQuery(ctx, projectID)
	gt.NoError(t, err)

	rows := []*auditRow{
		{
			ConversationID: "conv_test",
			Query:          "find the safety diagram",
			Success:        true,
			CreatedAt:      time.Now(),
		},
	}
	gt.NoError(t, client.Insert(ctx, datasetID, table, rows))
}
