package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// GPTLoadClient merges keys into named groups on a gpt-load gateway. Group
// names from config are resolved to ids once per push; the add endpoint
// dedupes server-side, so resending a key is harmless.
type GPTLoadClient struct {
	http    *http.Client
	baseURL string
	auth    string
	groups  []string
}

func NewGPTLoadClient(hc *http.Client, baseURL, auth string, groups []string) *GPTLoadClient {
	return &GPTLoadClient{http: hc, baseURL: strings.TrimRight(baseURL, "/"), auth: auth, groups: groups}
}

type gptLoadGroup struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (c *GPTLoadClient) Push(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	groups, err := c.fetchGroups(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int, len(groups))
	for _, g := range groups {
		byName[g.Name] = g.ID
	}

	for _, name := range c.groups {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("gpt-load group %q not found", name)
		}
		if err := c.addKeys(ctx, id, keys); err != nil {
			return nil, fmt.Errorf("gpt-load group %q: %w", name, err)
		}
	}

	results := make(map[string]string, len(keys))
	for _, k := range keys {
		results[k] = "ok"
	}
	return results, nil
}

func (c *GPTLoadClient) fetchGroups(ctx context.Context) ([]gptLoadGroup, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/groups", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch gpt-load groups: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch gpt-load groups: status %d", resp.StatusCode)
	}

	var payload struct {
		Data []gptLoadGroup `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode gpt-load groups: %w", err)
	}
	return payload.Data, nil
}

func (c *GPTLoadClient) addKeys(ctx context.Context, groupID int, keys []string) error {
	body, err := json.Marshal(map[string]any{
		"group_id":  groupID,
		"keys_text": strings.Join(keys, ","),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/keys/add-async", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("add keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("add keys: status %d", resp.StatusCode)
	}
	return nil
}
