package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project string
		name    string
		want    string
	}{
		{"proj", "orders", "projects/proj/topics/orders"},
		{"proj", " orders ", "projects/proj/topics/orders"},
		{"proj", "projects/other/topics/payouts", "projects/other/topics/payouts"},
		{"", "orders", ""},
		{"proj", "", ""},
	}
	for _, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("TopicResourceName(%q,%q)=%q want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: "orders", PayoutsTopic: "  ", RefundsTopic: "refunds"})
	if len(names) != 2 || names[0] != "orders" || names[1] != "refunds" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestClientOptions(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/sa.json"}); len(opts) != 1 {
		t.Fatalf("expected one credentials option, got %d", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/sa.json"}); len(opts) != 1 {
		t.Fatalf("expected one credentials option, got %d", len(opts))
	}
}

func TestClosedClientHasNoPublishers(t *testing.T) {
	var c *Client
	if c.Publisher("orders") != nil {
		t.Fatalf("nil client returned a publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping on nil client to fail")
	}
}
