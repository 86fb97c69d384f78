package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/news-intel/internal/config"
)

func TestNew_Drivers(t *testing.T) {
	n, err := New(config.NotifyConfig{})
	require.NoError(t, err)
	assert.IsType(t, LogNotifier{}, n)

	n, err = New(config.NotifyConfig{Driver: "webhook", WebhookURL: "http://localhost"})
	require.NoError(t, err)
	assert.IsType(t, &WebhookNotifier{}, n)

	_, err = New(config.NotifyConfig{Driver: "pigeon"})
	assert.ErrorContains(t, err, "unknown driver")
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Notify(context.Background(), Message{Kind: KindAlert, Recipient: "u1", Subject: "New facility"})
	require.NoError(t, err)
	assert.Equal(t, KindAlert, got.Kind)
	assert.Equal(t, "u1", got.Recipient)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Notify(context.Background(), Message{Kind: KindLead})
	assert.ErrorContains(t, err, "status 502")
}

func TestKafkaNotifier_Publishes(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var m Message
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		if m.Kind != KindDigest {
			return errors.New("unexpected kind " + string(m.Kind))
		}
		return nil
	})

	k := NewKafkaWithProducer(producer, "")
	require.NoError(t, k.Notify(context.Background(), Message{Kind: KindDigest, Recipient: "u1"}))
	require.NoError(t, k.Close())
}

func TestKafkaNotifier_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	k := NewKafkaWithProducer(producer, "alerts")
	err := k.Notify(context.Background(), Message{Kind: KindAlert})
	assert.ErrorContains(t, err, "publish alert to alerts")
	require.NoError(t, k.Close())
}

type recordingNotifier struct {
	msgs []Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestFanout_DeliversToAll(t *testing.T) {
	a := &recordingNotifier{err: errors.New("down")}
	b := &recordingNotifier{}

	err := Fanout{a, b}.Notify(context.Background(), Message{Kind: KindAlert})
	assert.EqualError(t, err, "down")
	assert.Len(t, a.msgs, 1)
	assert.Len(t, b.msgs, 1)
	assert.NoError(t, Close(b))
}
