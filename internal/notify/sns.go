// Package notify publishes backup run failures to an AWS SNS topic.
package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNS limits.
const (
	maxSubjectLen = 100
	maxMessageLen = 256 * 1024
)

// Failure is one file that could not be backed up.
type Failure struct {
	Path string
	Err  error
}

// RunSummary describes a finished backup run.
type RunSummary struct {
	Schedule  string
	Folder    string
	Uploaded  int
	Updated   int
	Unchanged int
	Failures  []Failure
	// Err is set when the run as a whole failed, e.g. the folder could not
	// be resolved.
	Err error
}

// Failed reports whether the run needs attention.
func (s *RunSummary) Failed() bool {
	return s.Err != nil || len(s.Failures) > 0
}

// Notifier reports run results somewhere a human will see them.
type Notifier interface {
	NotifyRun(ctx context.Context, summary RunSummary) error
}

// Publisher is the slice of the SNS client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes failed runs to a topic. Successful runs are not
// published.
type SNSNotifier struct {
	Client Publisher
	Topic  string
}

// Options selects the AWS credentials and region. Empty fields fall back to
// the SDK's default chain.
type Options struct {
	Topic   string
	Region  string
	Profile string
}

// NewSNSNotifier builds a notifier from the shared AWS configuration.
func NewSNSNotifier(ctx context.Context, opts Options) (*SNSNotifier, error) {
	var loadOpts []func(*config.LoadOptions) error

	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("notify: loading AWS config: %w", err)
	}

	return &SNSNotifier{Client: sns.NewFromConfig(cfg), Topic: opts.Topic}, nil
}

// NotifyRun publishes summary when the run failed.
func (n *SNSNotifier) NotifyRun(ctx context.Context, summary RunSummary) error {
	if !summary.Failed() {
		return nil
	}

	in := &sns.PublishInput{
		Message:  aws.String(truncate(formatMessage(&summary), maxMessageLen)),
		TopicArn: aws.String(n.Topic),
		Subject:  aws.String(truncate(formatSubject(&summary), maxSubjectLen)),
	}

	if _, err := n.Client.Publish(ctx, in); err != nil {
		return fmt.Errorf("notify: publishing to %s: %w", n.Topic, err)
	}

	return nil
}

func formatSubject(s *RunSummary) string {
	name := s.Schedule
	if name == "" {
		name = "manual"
	}

	if s.Err != nil {
		return fmt.Sprintf("Backup failed: %s", name)
	}

	return fmt.Sprintf("Backup errors: %s (%d files)", name, len(s.Failures))
}

func formatMessage(s *RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Schedule: %s\n", s.Schedule)
	fmt.Fprintf(&b, "Folder: %s\n", s.Folder)
	fmt.Fprintf(&b, "Uploaded: %d, updated: %d, unchanged: %d, failed: %d\n",
		s.Uploaded, s.Updated, s.Unchanged, len(s.Failures))

	if s.Err != nil {
		fmt.Fprintf(&b, "\nError: %v\n", s.Err)
	}

	if len(s.Failures) > 0 {
		b.WriteString("\nFailed files:\n")

		for _, f := range s.Failures {
			fmt.Fprintf(&b, "  - %s => %v\n", f.Path, f.Err)
		}
	}

	return b.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}

	return s
}
