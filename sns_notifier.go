package eventstore

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/indebted-modules/cfg"
)

type snsNotifier struct {
	client   *sns.SNS
	topicArn string
}

func (p *snsNotifier) Publish(data interface{}) error {
	type message struct {
		Default string `json:"default"`
	}

	rawData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	rawMessage, err := json.Marshal(message{Default: string(rawData)})
	if err != nil {
		return err
	}

	_, err = p.client.Publish(&sns.PublishInput{
		Message:          aws.String(string(rawMessage)),
		MessageStructure: aws.String("json"),
		TopicArn:         aws.String(p.topicArn),
	})
	return err
}

// NewSNSNotifier publishes JSON messages to an SNS topic
func NewSNSNotifier(client *sns.SNS, topicArn string) Notifier {
	if client == nil {
		client = sns.New(cfg.Sess)
	}
	return &snsNotifier{
		client:   client,
		topicArn: topicArn,
	}
}
