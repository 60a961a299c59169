package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxypool/backend/internal/storage"
	"proxypool/backend/internal/storage/memory"
)

func TestUploadService_Upload(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	upload := NewUploadService(store, store, 100, nil, nil)

	content := "1.1.1.1:8080:u:p\n\n  2.2.2.2:8080:u:p  \r\n3.3.3.3:8080:u:p\n"
	count, err := upload.Upload("admin-1", "proxies.txt", content, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	total, _, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	// One history record for the whole file
	history, err := upload.History(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "proxies.txt", history[0].FileName)
	assert.Equal(t, 3, history[0].ProxyCount)
	assert.Equal(t, "append", history[0].Position)
}

func TestUploadService_Upload_BatchesOf100(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	upload := NewUploadService(store, store, 100, nil, nil)

	var sb strings.Builder
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&sb, "10.1.%d.%d:8080:u:p\n", i/200, i%200)
	}

	var events []UploadProgress
	count, err := upload.Upload("admin-1", "big.txt", sb.String(), func(p UploadProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)
	assert.Equal(t, 250, count)

	// found + 3 insert batches (100/100/50) + done
	require.Len(t, events, 5)
	assert.Equal(t, "found", events[0].Stage)
	assert.Equal(t, 100, events[1].Inserted)
	assert.Equal(t, 200, events[2].Inserted)
	assert.Equal(t, 250, events[3].Inserted)
	assert.Equal(t, "done", events[4].Stage)

	total, _, err := store.CountProxies()
	require.NoError(t, err)
	assert.Equal(t, 250, total)
}

func TestUploadService_Upload_Duplicate(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	upload := NewUploadService(store, store, 100, nil, nil)

	_, err := upload.Upload("admin-1", "a.txt", "1.1.1.1:8080:u:p\n", nil)
	require.NoError(t, err)

	_, err = upload.Upload("admin-1", "b.txt", "1.1.1.1:8080:u:p\n2.2.2.2:8080:u:p\n", nil)
	assert.ErrorIs(t, err, storage.ErrProxyExists)

	// The failed upload leaves no history record
	history, err := upload.History(10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUploadService_Upload_EmptyContent(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	upload := NewUploadService(store, store, 100, nil, nil)

	count, err := upload.Upload("admin-1", "empty.txt", "\n\n   \n", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	history, err := upload.History(10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUploadService_ParseContent_LineTooLong(t *testing.T) {
	store := memory.NewStore(10 * time.Minute)
	upload := NewUploadService(store, store, 100, nil, nil)

	_, err := upload.ParseContent(strings.Repeat("x", 300))
	assert.Error(t, err)
}
