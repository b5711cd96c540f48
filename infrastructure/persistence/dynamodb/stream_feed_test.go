package dynamodb

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "taskable/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStreams serves one open shard whose records are queued by push
type fakeStreams struct {
	mu        sync.Mutex
	queued    []streamtypes.Record
	positions []streamtypes.ShardIteratorType
	expireOne bool
}

func (f *fakeStreams) DescribeStream(_ context.Context, _ *dynamodbstreams.DescribeStreamInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error) {
	return &dynamodbstreams.DescribeStreamOutput{StreamDescription: &streamtypes.StreamDescription{
		Shards: []streamtypes.Shard{
			{ShardId: aws.String("shard-open")},
			{
				ShardId:             aws.String("shard-closed"),
				SequenceNumberRange: &streamtypes.SequenceNumberRange{EndingSequenceNumber: aws.String("9")},
			},
		},
	}}, nil
}

func (f *fakeStreams) GetShardIterator(_ context.Context, in *dynamodbstreams.GetShardIteratorInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, in.ShardIteratorType)
	return &dynamodbstreams.GetShardIteratorOutput{ShardIterator: aws.String(aws.ToString(in.ShardId) + "-it")}, nil
}

func (f *fakeStreams) GetRecords(_ context.Context, in *dynamodbstreams.GetRecordsInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expireOne {
		f.expireOne = false
		return nil, &streamtypes.ExpiredIteratorException{Message: aws.String("expired")}
	}
	records := f.queued
	f.queued = nil
	return &dynamodbstreams.GetRecordsOutput{Records: records, NextShardIterator: in.ShardIterator}, nil
}

func (f *fakeStreams) push(pk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, streamtypes.Record{
		EventName: streamtypes.OperationTypeModify,
		Dynamodb: &streamtypes.StreamRecord{Keys: map[string]streamtypes.AttributeValue{
			"PK": &streamtypes.AttributeValueMemberS{Value: pk},
			"SK": &streamtypes.AttributeValueMemberS{Value: "LIST#A"},
		}},
	})
}

func (f *fakeStreams) iteratorCalls() []streamtypes.ShardIteratorType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]streamtypes.ShardIteratorType(nil), f.positions...)
}

func streamTable() *types.TableDescription {
	return &types.TableDescription{LatestStreamArn: aws.String("arn:aws:dynamodb:stream/lists")}
}

func TestStreamFeed_SignalsOwnerChangesOnly(t *testing.T) {
	// Arrange
	streams := &fakeStreams{}
	feed := NewStreamFeed(&fakeDynamo{table: streamTable()}, streams, "lists", 5*time.Millisecond, zap.NewNop())
	changes := make(chan struct{}, 10)

	sub, err := feed.Subscribe(context.Background(), "u1", func() { changes <- struct{}{} })
	require.NoError(t, err)
	defer sub.Close()

	// Act
	streams.push("USER#u2")
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, changes, 0)

	streams.push("USER#u1")

	// Assert
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
	assert.Equal(t, []streamtypes.ShardIteratorType{streamtypes.ShardIteratorTypeLatest}, streams.iteratorCalls())
}

func TestStreamFeed_ExpiredIteratorSignalsChange(t *testing.T) {
	streams := &fakeStreams{expireOne: true}
	feed := NewStreamFeed(&fakeDynamo{table: streamTable()}, streams, "lists", 5*time.Millisecond, zap.NewNop())
	changes := make(chan struct{}, 10)

	sub, err := feed.Subscribe(context.Background(), "u1", func() { changes <- struct{}{} })
	require.NoError(t, err)
	defer sub.Close()

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change notification after iterator expiry")
	}
	assert.Eventually(t, func() bool {
		return len(streams.iteratorCalls()) >= 2
	}, time.Second, 5*time.Millisecond)

	// the expired shard resumes at LATEST rather than replaying from TRIM_HORIZON
	for _, pos := range streams.iteratorCalls() {
		assert.Equal(t, streamtypes.ShardIteratorTypeLatest, pos)
	}
}

func TestStreamFeed_NoStream(t *testing.T) {
	feed := NewStreamFeed(&fakeDynamo{table: &types.TableDescription{}}, &fakeStreams{}, "lists", time.Second, zap.NewNop())

	_, err := feed.Subscribe(context.Background(), "u1", func() {})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfig))
}

func TestStreamFeed_CloseStopsPolling(t *testing.T) {
	streams := &fakeStreams{}
	feed := NewStreamFeed(&fakeDynamo{table: streamTable()}, streams, "lists", 5*time.Millisecond, zap.NewNop())
	changes := make(chan struct{}, 10)
	sub, err := feed.Subscribe(context.Background(), "u1", func() { changes <- struct{}{} })
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	streams.push("USER#u1")
	time.Sleep(30 * time.Millisecond)

	assert.Len(t, changes, 0)
}
