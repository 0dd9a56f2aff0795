package nexusagentd

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"nexuschain/nexus/agent"
)

// RESTMulticaster delivers a SignedMessage to a consensus node's HTTP
// ingress endpoint. Nodes are addressed by a static node-id -> base-URL map
// resolved at startup, matching the gateway client's baseURL-per-target resty
// idiom rather than a shared connection pool keyed by node id.
type RESTMulticaster struct {
	http      *resty.Client
	endpoints map[string]string // node id -> base URL
}

// NewRESTMulticaster builds a multicaster against the given node endpoint
// map, one resty client shared across targets.
func NewRESTMulticaster(endpoints map[string]string) *RESTMulticaster {
	return &RESTMulticaster{
		http:      resty.New().SetTimeout(defaultMulticastTimeout),
		endpoints: endpoints,
	}
}

// Send posts msg to the node's /v1/messages endpoint. A node not present in
// the endpoint map is a configuration error, not a transient one, and is
// returned immediately without a request attempt.
func (m *RESTMulticaster) Send(ctx context.Context, nodeID string, msg *agent.SignedMessage) error {
	base, ok := m.endpoints[nodeID]
	if !ok {
		return fmt.Errorf("nexusagentd: no endpoint configured for node %q", nodeID)
	}
	resp, err := m.http.R().
		SetContext(ctx).
		SetBody(msg).
		Post(base + "/v1/messages")
	if err != nil {
		return fmt.Errorf("nexusagentd: send to node %q: %w", nodeID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("nexusagentd: node %q rejected message: %s", nodeID, resp.Status())
	}
	return nil
}

var _ agent.Multicaster = (*RESTMulticaster)(nil)
