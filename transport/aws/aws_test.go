package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/parcelflow/transport"
	"github.com/drblury/parcelflow/transport/transporttest"
)

type captured struct {
	accountID string
	region    string
	pubCfg    sns.PublisherConfig
	subCfg    sns.SubscriberConfig
	sqsCfg    sqs.SubscriberConfig
}

// stubFactories replaces the SDK hooks for the duration of the test.
func stubFactories(t *testing.T, pubErr, subErr error) (*captured, *transporttest.Publisher, *transporttest.Subscriber) {
	t.Helper()

	loader, resolver, pubFactory, subFactory := DefaultConfigLoader, TopicResolverFactory, PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader, TopicResolverFactory, PublisherFactory, SubscriberFactory = loader, resolver, pubFactory, subFactory
	})

	c := &captured{}
	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}

	DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "eu-central-1"}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		c.accountID, c.region = accountID, region
		return &sns.GenerateArnTopicResolver{}, nil
	}
	PublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		c.pubCfg = cfg
		if pubErr != nil {
			return nil, pubErr
		}
		return pub, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		c.subCfg, c.sqsCfg = cfg, sqsCfg
		if subErr != nil {
			return nil, subErr
		}
		return sub, nil
	}
	return c, pub, sub
}

func TestRegister(t *testing.T) {
	reg := transport.NewRegistry()
	Register(reg)

	assert.True(t, reg.Has(TransportName))
	caps := reg.GetCapabilities(TransportName)
	assert.True(t, caps.Durable)
	assert.True(t, caps.SupportsReliableDelivery())
}

func TestBuild(t *testing.T) {
	t.Run("uses configured account and region", func(t *testing.T) {
		c, pub, sub := stubFactories(t, nil, nil)

		tr, err := Build(context.Background(), &transporttest.Config{
			AWSRegion:    "us-west-2",
			AWSAccountID: "'123456789012'",
		}, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Same(t, pub, tr.Publisher)
		assert.Same(t, sub, tr.Subscriber)
		assert.Equal(t, "123456789012", c.accountID)
		assert.Equal(t, "us-west-2", c.region)
		assert.Equal(t, "us-west-2", c.pubCfg.AWSConfig.Region)
		assert.Empty(t, c.pubCfg.OptFns)
		assert.Empty(t, c.sqsCfg.OptFns)
	})

	t.Run("falls back to the loaded region", func(t *testing.T) {
		c, _, _ := stubFactories(t, nil, nil)

		_, err := Build(context.Background(), &transporttest.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Equal(t, "eu-central-1", c.region)
	})

	t.Run("custom endpoint switches to the LocalStack account", func(t *testing.T) {
		c, _, _ := stubFactories(t, nil, nil)

		_, err := Build(context.Background(), &transporttest.Config{
			AWSRegion:   "us-east-1",
			AWSEndpoint: "http://localhost:4566",
		}, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Equal(t, localstackAccountID, c.accountID)
		assert.Len(t, c.pubCfg.OptFns, 1)
		assert.Len(t, c.subCfg.OptFns, 1)
		assert.Len(t, c.sqsCfg.OptFns, 1)
	})

	t.Run("loader failure", func(t *testing.T) {
		stubFactories(t, nil, nil)
		DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("no credentials")
		}

		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
		assert.EqualError(t, err, "no credentials")
	})

	t.Run("invalid endpoint", func(t *testing.T) {
		stubFactories(t, nil, nil)

		_, err := Build(context.Background(), &transporttest.Config{AWSEndpoint: "://bad"}, watermill.NopLogger{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse AWS endpoint")
	})

	t.Run("publisher failure", func(t *testing.T) {
		stubFactories(t, errors.New("publisher error"), nil)

		_, err := Build(context.Background(), &transporttest.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})
		assert.EqualError(t, err, "publisher error")
	})

	t.Run("subscriber failure closes the publisher", func(t *testing.T) {
		_, pub, _ := stubFactories(t, nil, errors.New("subscriber error"))

		_, err := Build(context.Background(), &transporttest.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})
		assert.EqualError(t, err, "subscriber error")
		assert.True(t, pub.Closed())
	})
}

func TestQueueNameFromTopic(t *testing.T) {
	name, err := queueNameFromTopic(context.Background(), "arn:aws:sns:us-east-1:123456789012:parcelflow-requests")
	require.NoError(t, err)
	assert.Equal(t, "parcelflow-requests", name)
}
