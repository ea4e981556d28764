package adapter_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/gt"
)

func testStorageRoundTrip(t *testing.T, st adapter.Storage) {
	ctx := context.Background()

	w, err := st.Put(ctx, "conversations/conv_test.json")
	gt.NoError(t, err)
	_, err = w.Write([]byte(`{"id":"conv_test"}`))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := st.Get(ctx, "conversations/conv_test.json")
	gt.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), `{"id":"conv_test"}`)
}

func TestFileStorage(t *testing.T) {
	st, err := adapter.NewFileStorage(t.TempDir())
	gt.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		testStorageRoundTrip(t, st)
	})

	t.Run("missing object", func(t *testing.T) {
		_, err := st.Get(context.Background(), "data/not-exist")
		gt.Error(t, err)
	})

	t.Run("key escaping base directory", func(t *testing.T) {
		_, err := st.Put(context.Background(), "../outside")
		gt.Error(t, err)
	})
}

func TestCloudStorage(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_BUCKET is not set")
	}

	st, err := adapter.NewStorage(context.Background(), bucket, adapter.WithStoragePrefix("conclave-test/"))
	gt.NoError(t, err)
	testStorageRoundTrip(t, st)
}
