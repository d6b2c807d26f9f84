package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	channel string
	msgs    [][]byte
	err     error
	closed  bool
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.msgs = append(f.msgs, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestRedisNotifier_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := newRedisNotifier(pub, "docextract.extracted", nil)

	e := Event{FileID: uuid.New(), Page: 3, Finished: true, Status: "COMPLETE", At: time.Now().UTC()}
	require.NoError(t, n.Notify(context.Background(), e))

	assert.Equal(t, "docextract.extracted", pub.channel)
	require.Len(t, pub.msgs, 1)
	var got Event
	require.NoError(t, json.Unmarshal(pub.msgs[0], &got))
	assert.Equal(t, e.FileID, got.FileID)
	assert.Equal(t, 3, got.Page)
	assert.True(t, got.Finished)

	require.NoError(t, n.Close())
	assert.True(t, pub.closed)
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("connection refused")
	m := Multi{NewLogNotifier(nil), newRedisNotifier(&fakePublisher{err: boom}, "c", nil)}

	err := m.Notify(context.Background(), Event{FileID: uuid.New()})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, m.Close())
}
