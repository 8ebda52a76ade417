package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// EnsureIndex 索引不存在时按 mapping 创建
func (c *Client) EnsureIndex(ctx context.Context, index string, mapping map[string]interface{}) error {
	exists, err := c.IndexExists(ctx, index)
	if err != nil || exists {
		return err
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err := c.ES.Indices.Create(index,
		c.ES.Indices.Create.WithContext(ctx),
		c.ES.Indices.Create.WithBody(bytes.NewReader(body)))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index error: %s", res.String())
	}
	return nil
}

func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.ES.Indices.Exists([]string{index}, c.ES.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}
