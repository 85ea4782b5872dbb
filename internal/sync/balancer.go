// Package sync delivers confirmed keys to external aggregators. Delivery is
// at-least-once: keys wait in the durable checkpoint queue until a push
// succeeds, and the remote merge is an idempotent upsert.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// BalancerClient merges keys into a remote balancer's API_KEYS list via its
// config endpoint: fetch, merge without duplicating, push back.
type BalancerClient struct {
	http    *http.Client
	baseURL string
	auth    string
}

func NewBalancerClient(hc *http.Client, baseURL, auth string) *BalancerClient {
	return &BalancerClient{http: hc, baseURL: strings.TrimRight(baseURL, "/"), auth: auth}
}

// Push returns a per-key status map ("ok" or "duplicate") for the send log.
func (c *BalancerClient) Push(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	configURL := c.baseURL + "/api/config"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch balancer config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch balancer config: status %d", resp.StatusCode)
	}

	var config map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode balancer config: %w", err)
	}

	var existing []string
	if raw, ok := config["API_KEYS"]; ok {
		if err := json.Unmarshal(raw, &existing); err != nil {
			return nil, fmt.Errorf("decode API_KEYS: %w", err)
		}
	}

	existingSet := make(map[string]bool, len(existing))
	for _, k := range existing {
		existingSet[k] = true
	}

	results := make(map[string]string, len(keys))
	merged := existing
	for _, k := range keys {
		if existingSet[k] {
			results[k] = "duplicate"
			continue
		}
		merged = append(merged, k)
		results[k] = "ok"
	}
	if len(merged) == len(existing) {
		return results, nil
	}

	mergedRaw, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	config["API_KEYS"] = mergedRaw

	body, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, configURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(putReq)
	putReq.Header.Set("Content-Type", "application/json")

	putResp, err := c.http.Do(putReq)
	if err != nil {
		return nil, fmt.Errorf("push balancer config: %w", err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("push balancer config: status %d", putResp.StatusCode)
	}

	return results, nil
}

func (c *BalancerClient) setHeaders(req *http.Request) {
	req.Header.Set("Cookie", "auth_token="+c.auth)
	req.Header.Set("User-Agent", "PatScan/1.0")
}
