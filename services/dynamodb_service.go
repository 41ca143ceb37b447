package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aiclone/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
)

type DynamoDBConfig struct {
	Endpoint        string // DynamoDB Local なら http://localhost:8000、空なら AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type DynamoDBStore struct {
	client             *dynamodb.Client
	usersTable         string
	usernamesTable     string // username -> user_id、一意制約用
	conversationsTable string
	logger             *slog.Logger
}

// 認証情報なしでエンドポイントを指定した場合はダミーの認証情報を使う（DynamoDB Local 用）
func NewDynamoDBClient(ctx context.Context, cfg DynamoDBConfig) (*dynamodb.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: region}, nil
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}

	switch {
	case cfg.AccessKeyID != "":
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	case cfg.Endpoint != "":
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy"),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

// テーブル名は <prefix>_users、<prefix>_usernames、<prefix>_conversations
func NewDynamoDBStore(client *dynamodb.Client, tablePrefix string, logger *slog.Logger) *DynamoDBStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoDBStore{
		client:             client,
		usersTable:         tablePrefix + "_users",
		usernamesTable:     tablePrefix + "_usernames",
		conversationsTable: tablePrefix + "_conversations",
		logger:             logger,
	}
}

// EnsureTables はテーブルがなければ作成し、ACTIVE になるまで待つ
func (s *DynamoDBStore) EnsureTables(ctx context.Context) error {
	tables := map[string]string{
		s.usersTable:         "user_id",
		s.usernamesTable:     "username",
		s.conversationsTable: "conversation_id",
	}

	for name, key := range tables {
		_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(name),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(key), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(key), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		var inUse *types.ResourceInUseException
		switch {
		case err == nil:
			s.logger.Info("created dynamodb table", "table", name)
		case errors.As(err, &inUse):
			s.logger.Debug("dynamodb table already exists", "table", name)
		default:
			return storeError("create table "+name, err)
		}

		waiter := dynamodb.NewTableExistsWaiter(s.client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, 30*time.Second); err != nil {
			return storeError("wait for table "+name, err)
		}
	}
	return s.backfillUsernames(ctx)
}

// usernames テーブルより前に作られたユーザーを登録する
func (s *DynamoDBStore) backfillUsernames(ctx context.Context) error {
	items, err := s.scan(ctx, &dynamodb.ScanInput{
		TableName:            aws.String(s.usersTable),
		ProjectionExpression: aws.String("user_id, username"),
	})
	if err != nil {
		return storeError("scan users", err)
	}

	for _, item := range items {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.usernamesTable),
			Item:                usernameItem(getS(item, "username"), getS(item, "user_id")),
			ConditionExpression: aws.String("attribute_not_exists(username)"),
		})
		var condErr *types.ConditionalCheckFailedException
		if err != nil && !errors.As(err, &condErr) {
			return storeError("backfill username", err)
		}
	}
	return nil
}

// CreateUser はユーザー本体とユーザー名の予約を1トランザクションで書き込む
func (s *DynamoDBStore) CreateUser(ctx context.Context, user models.User) error {
	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.usersTable),
				Item:                userItem(user),
				ConditionExpression: aws.String("attribute_not_exists(user_id)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.usernamesTable),
				Item:                usernameItem(user.Username, user.UserID),
				ConditionExpression: aws.String("attribute_not_exists(username)"),
			}},
		},
	}

	// 同じ項目への同時トランザクションは TransactionConflict で失敗するのでやり直す
	op := func() error {
		_, err := s.client.TransactWriteItems(ctx, input)
		if err == nil {
			return nil
		}
		var canceled *types.TransactionCanceledException
		if !errors.As(err, &canceled) {
			return backoff.Permanent(storeError("put user", err))
		}
		// 理由の順番は TransactItems と同じ
		reasons := canceled.CancellationReasons
		switch {
		case hasReason(reasons, 1, "ConditionalCheckFailed"):
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrUsernameTaken, user.Username))
		case hasReason(reasons, 0, "ConditionalCheckFailed"):
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrUserExists, user.UserID))
		case hasReason(reasons, 0, "TransactionConflict"), hasReason(reasons, 1, "TransactionConflict"):
			s.logger.Debug("user transaction conflict, retrying", "user_id", user.UserID)
			return storeError("put user", err)
		default:
			return backoff.Permanent(storeError("put user", err))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 10), ctx))
}

func hasReason(reasons []types.CancellationReason, i int, code string) bool {
	return i < len(reasons) && aws.ToString(reasons[i].Code) == code
}

func (s *DynamoDBStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.usersTable),
		Key:            map[string]types.AttributeValue{"user_id": attrS(userID)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.User{}, storeError("get user", err)
	}
	if len(out.Item) == 0 {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return userFromItem(out.Item), nil
}

func (s *DynamoDBStore) ListUsers(ctx context.Context) ([]models.User, error) {
	items, err := s.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.usersTable)})
	if err != nil {
		return nil, storeError("scan users", err)
	}

	users := make([]models.User, 0, len(items))
	for _, item := range items {
		users = append(users, userFromItem(item))
	}
	sortUsers(users)
	return users, nil
}

func (s *DynamoDBStore) CreateConversation(ctx context.Context, conversation models.Conversation) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.conversationsTable),
		Item:                conversationItem(conversation),
		ConditionExpression: aws.String("attribute_not_exists(conversation_id)"),
	})
	if err != nil {
		return storeError("put conversation", err)
	}
	return nil
}

func (s *DynamoDBStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	return s.listConversations(ctx, &dynamodb.ScanInput{TableName: aws.String(s.conversationsTable)})
}

func (s *DynamoDBStore) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.listConversations(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.conversationsTable),
		FilterExpression: aws.String("#u1 = :uid OR #u2 = :uid"),
		ExpressionAttributeNames: map[string]string{
			"#u1": "user1_id",
			"#u2": "user2_id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{":uid": attrS(userID)},
	})
}

func (s *DynamoDBStore) Close(context.Context) error {
	return nil
}

func (s *DynamoDBStore) listConversations(ctx context.Context, input *dynamodb.ScanInput) ([]models.Conversation, error) {
	items, err := s.scan(ctx, input)
	if err != nil {
		return nil, storeError("scan conversations", err)
	}

	conversations := make([]models.Conversation, 0, len(items))
	for _, item := range items {
		conversations = append(conversations, conversationFromItem(item))
	}
	sortConversations(conversations)
	return conversations, nil
}

func (s *DynamoDBStore) scan(ctx context.Context, input *dynamodb.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func userItem(u models.User) map[string]types.AttributeValue {
	p := u.Personality
	return map[string]types.AttributeValue{
		"user_id":    attrS(u.UserID),
		"username":   attrS(u.Username),
		"created_at": attrS(u.CreatedAt),
		"personality": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"name":                attrS(p.Name),
			"communication_style": attrS(p.CommunicationStyle),
			"interests":           attrList(p.Interests),
			"personality_traits":  attrList(p.PersonalityTraits),
			"favorite_topics":     attrList(p.FavoriteTopics),
			"speaking_quirks":     attrS(p.SpeakingQuirks),
			"background":          attrS(p.Background),
		}},
	}
}

func userFromItem(item map[string]types.AttributeValue) models.User {
	p := getM(item, "personality")
	return models.User{
		UserID:    getS(item, "user_id"),
		Username:  getS(item, "username"),
		CreatedAt: getS(item, "created_at"),
		Personality: models.Personality{
			Name:               getS(p, "name"),
			CommunicationStyle: getS(p, "communication_style"),
			Interests:          getList(p, "interests"),
			PersonalityTraits:  getList(p, "personality_traits"),
			FavoriteTopics:     getList(p, "favorite_topics"),
			SpeakingQuirks:     getS(p, "speaking_quirks"),
			Background:         getS(p, "background"),
		},
	}
}

func usernameItem(username, userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"username": attrS(username),
		"user_id":  attrS(userID),
	}
}

func conversationItem(c models.Conversation) map[string]types.AttributeValue {
	messages := make([]types.AttributeValue, 0, len(c.Messages))
	for _, m := range c.Messages {
		messages = append(messages, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"speaker":   attrS(m.Speaker),
			"message":   attrS(m.Message),
			"timestamp": attrS(m.Timestamp),
		}})
	}

	return map[string]types.AttributeValue{
		"conversation_id": attrS(c.ConversationID),
		"user1_id":        attrS(c.User1ID),
		"user2_id":        attrS(c.User2ID),
		"topic":           attrS(c.Topic),
		"messages":        &types.AttributeValueMemberL{Value: messages},
		"created_at":      attrS(c.CreatedAt),
	}
}

func conversationFromItem(item map[string]types.AttributeValue) models.Conversation {
	c := models.Conversation{
		ConversationID: getS(item, "conversation_id"),
		User1ID:        getS(item, "user1_id"),
		User2ID:        getS(item, "user2_id"),
		Topic:          getS(item, "topic"),
		CreatedAt:      getS(item, "created_at"),
		Messages:       []models.Message{},
	}

	if l, ok := item["messages"].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			m, ok := v.(*types.AttributeValueMemberM)
			if !ok {
				continue
			}
			c.Messages = append(c.Messages, models.Message{
				Speaker:   getS(m.Value, "speaker"),
				Message:   getS(m.Value, "message"),
				Timestamp: getS(m.Value, "timestamp"),
			})
		}
	}
	return c
}

func attrS(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func attrList(values []string) types.AttributeValue {
	l := make([]types.AttributeValue, 0, len(values))
	for _, v := range values {
		l = append(l, attrS(v))
	}
	return &types.AttributeValueMemberL{Value: l}
}

func getS(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func getM(item map[string]types.AttributeValue, key string) map[string]types.AttributeValue {
	if v, ok := item[key].(*types.AttributeValueMemberM); ok {
		return v.Value
	}
	return nil
}

func getList(item map[string]types.AttributeValue, key string) []string {
	l, ok := item[key].(*types.AttributeValueMemberL)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(l.Value))
	for _, v := range l.Value {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			out = append(out, s.Value)
		}
	}
	return out
}
