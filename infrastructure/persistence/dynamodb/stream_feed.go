package dynamodb

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskable/application/ports"
	apperrors "taskable/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"go.uber.org/zap"
)

// TableAPI resolves the table's stream
type TableAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// StreamsAPI is the subset of the DynamoDB Streams client used by StreamFeed
type StreamsAPI interface {
	DescribeStream(ctx context.Context, params *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, params *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

// StreamFeed implements ports.ChangeFeed by polling the table's stream and
// signalling when a record in the owner's partition changes
type StreamFeed struct {
	tables       TableAPI
	streams      StreamsAPI
	tableName    string
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewStreamFeed creates a feed for tableName. pollInterval defaults to one second.
func NewStreamFeed(tables TableAPI, streams StreamsAPI, tableName string, pollInterval time.Duration, logger *zap.Logger) *StreamFeed {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &StreamFeed{
		tables:       tables,
		streams:      streams,
		tableName:    tableName,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Subscribe resolves the stream, positions every open shard at LATEST and
// polls until the subscription is closed
func (f *StreamFeed) Subscribe(ctx context.Context, ownerID string, onChange func()) (ports.Subscription, error) {
	out, err := f.tables.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(f.tableName)})
	if err != nil {
		return nil, apperrors.NewDatabaseError("describe table", err)
	}
	if out.Table == nil || aws.ToString(out.Table.LatestStreamArn) == "" {
		return nil, apperrors.NewConfigError("table " + f.tableName + " has no stream enabled")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &poller{
		feed:      f,
		streamArn: aws.ToString(out.Table.LatestStreamArn),
		pk:        userPK(ownerID),
		onChange:  onChange,
		iterators: make(map[string]*string),
		cancel:    cancel,
		logger:    f.logger.With(zap.String("ownerID", ownerID), zap.String("table", f.tableName)),
	}

	if err := p.discover(ctx, streamtypes.ShardIteratorTypeLatest); err != nil {
		cancel()
		return nil, err
	}

	shards := len(p.iterators)
	p.wg.Add(1)
	go p.run(runCtx)

	p.logger.Info("Subscribed to table stream", zap.Int("shards", shards))
	return p, nil
}

type poller struct {
	feed      *StreamFeed
	streamArn string
	pk        string
	onChange  func()
	logger    *zap.Logger

	// touched only by the run goroutine after Subscribe returns
	iterators map[string]*string
	done      map[string]bool
	reopen    map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Close stops polling
func (p *poller) Close() error {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.logger.Debug("Stream subscription closed")
	})
	return nil
}

func (p *poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.feed.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		changed, err := p.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Warn("Stream poll failed", zap.Error(err))
		}
		if changed {
			p.onChange()
		}
	}
}

// poll reads every tracked shard once and reports whether any record
// belongs to the owner's partition. New shards start at TRIM_HORIZON so
// nothing written after a split is lost.
func (p *poller) poll(ctx context.Context) (bool, error) {
	if err := p.discover(ctx, streamtypes.ShardIteratorTypeTrimHorizon); err != nil {
		return false, err
	}

	changed := false
	var firstErr error
	for shardID, iter := range p.iterators {
		out, err := p.feed.streams.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{ShardIterator: iter})
		if err != nil {
			var expired *streamtypes.ExpiredIteratorException
			var trimmed *streamtypes.TrimmedDataAccessException
			if errors.As(err, &expired) || errors.As(err, &trimmed) {
				// events may have been missed; the refetch covers them, so
				// the shard resumes at LATEST instead of replaying its history
				delete(p.iterators, shardID)
				p.markReopen(shardID)
				changed = true
				continue
			}
			if firstErr == nil {
				firstErr = apperrors.NewDatabaseError("get stream records", err)
			}
			continue
		}

		if p.matches(out.Records) {
			changed = true
		}

		if out.NextShardIterator == nil {
			delete(p.iterators, shardID)
			p.markDone(shardID)
			continue
		}
		p.iterators[shardID] = out.NextShardIterator
	}
	return changed, firstErr
}

func (p *poller) matches(records []streamtypes.Record) bool {
	for _, rec := range records {
		if rec.Dynamodb == nil {
			continue
		}
		if pk, ok := rec.Dynamodb.Keys["PK"].(*streamtypes.AttributeValueMemberS); ok && pk.Value == p.pk {
			return true
		}
	}
	return false
}

// discover adds an iterator for every shard not yet tracked or finished
func (p *poller) discover(ctx context.Context, position streamtypes.ShardIteratorType) error {
	var startShard *string
	for {
		out, err := p.feed.streams.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             aws.String(p.streamArn),
			ExclusiveStartShardId: startShard,
		})
		if err != nil {
			return apperrors.NewDatabaseError("describe stream", err)
		}
		if out.StreamDescription == nil {
			return nil
		}

		for _, shard := range out.StreamDescription.Shards {
			shardID := aws.ToString(shard.ShardId)
			if _, ok := p.iterators[shardID]; ok || p.done[shardID] {
				continue
			}
			pos := position
			if p.reopen[shardID] {
				pos = streamtypes.ShardIteratorTypeLatest
			}
			// closed shards positioned at LATEST have nothing new
			if pos == streamtypes.ShardIteratorTypeLatest &&
				shard.SequenceNumberRange != nil && shard.SequenceNumberRange.EndingSequenceNumber != nil {
				delete(p.reopen, shardID)
				p.markDone(shardID)
				continue
			}

			it, err := p.feed.streams.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
				StreamArn:         aws.String(p.streamArn),
				ShardId:           shard.ShardId,
				ShardIteratorType: pos,
			})
			if err != nil {
				return apperrors.NewDatabaseError("get shard iterator", err)
			}
			delete(p.reopen, shardID)
			p.iterators[shardID] = it.ShardIterator
		}

		if out.StreamDescription.LastEvaluatedShardId == nil {
			return nil
		}
		startShard = out.StreamDescription.LastEvaluatedShardId
	}
}

func (p *poller) markDone(shardID string) {
	if p.done == nil {
		p.done = make(map[string]bool)
	}
	p.done[shardID] = true
}

func (p *poller) markReopen(shardID string) {
	if p.reopen == nil {
		p.reopen = make(map[string]bool)
	}
	p.reopen[shardID] = true
}
